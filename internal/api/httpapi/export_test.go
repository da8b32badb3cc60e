package httpapi

import "github.com/ubuntu/recordfeed/internal/api"

// RecordTarget exposes the target built for a single record.
func (c *Client) RecordTarget(id string) (string, error) {
	return c.recordTarget(id)
}

// RecordsTarget exposes the target built for a collection.
func (c *Client) RecordsTarget(q api.Query) (string, error) {
	return c.recordsTarget(q)
}
