package graph

import (
	"strings"

	"github.com/google/go-querystring/query"
)

// QueryFromStruct builds a query mapping for NewRequest from a struct with
// "url" tags, as understood by go-querystring:
//
//	type FeedOptions struct {
//		Fields []string `url:"fields,comma"`
//		Limit  int      `url:"limit,omitempty"`
//	}
//
// A key with several values is sent comma separated. A nil pointer yields
// an empty mapping.
func QueryFromStruct(opt any) (map[string]string, error) {
	values, err := query.Values(opt)
	if err != nil {
		return nil, err
	}

	q := make(map[string]string, len(values))
	for k, v := range values {
		q[k] = strings.Join(v, ",")
	}
	return q, nil
}
