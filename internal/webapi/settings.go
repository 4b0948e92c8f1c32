package webapi

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// TraceSetting is the organization-wide plugin trace log level.
type TraceSetting int

const (
	TraceOff       TraceSetting = 0
	TraceException TraceSetting = 1
	TraceAll       TraceSetting = 2
)

func (s TraceSetting) String() string {
	switch s {
	case TraceOff:
		return "Off"
	case TraceException:
		return "Exception"
	case TraceAll:
		return "All"
	default:
		return fmt.Sprintf("TraceSetting(%d)", int(s))
	}
}

// Enabled reports whether any trace rows are being written.
func (s TraceSetting) Enabled() bool {
	return s == TraceException || s == TraceAll
}

// Identity is the caller as reported by the WhoAmI function.
type Identity struct {
	UserID         string `json:"userId" yaml:"userId"`
	BusinessUnitID string `json:"businessUnitId" yaml:"businessUnitId"`
	OrganizationID string `json:"organizationId" yaml:"organizationId"`
}

// TraceSetting reads plugintracelogsetting from the organization row.
// Concurrent callers share one request.
func (c *Client) TraceSetting(ctx context.Context) (TraceSetting, error) {
	v, err, shared := c.settings.Do("plugintracelogsetting", func() (interface{}, error) {
		var setting TraceSetting
		err := c.get(ctx, "organizations", "$select=plugintracelogsetting", 0, func(v *fastjson.Value) error {
			rows := v.GetArray("value")
			if len(rows) == 0 {
				return errors.Wrap(ErrMalformedPayload, "organizations returned no rows")
			}
			field := rows[0].Get("plugintracelogsetting")
			if field == nil || field.Type() != fastjson.TypeNumber {
				return errors.Wrap(ErrMalformedPayload, "plugintracelogsetting is missing")
			}
			setting = TraceSetting(field.GetInt())
			return nil
		})
		return setting, err
	})
	if err != nil {
		return TraceOff, errors.Wrap(err, "read trace setting")
	}
	c.log.V(1).Info("trace setting", "value", v.(TraceSetting).String(), "shared", shared)
	return v.(TraceSetting), nil
}

// WhoAmI returns the ids of the calling user and organization.
func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var id Identity
	err := c.get(ctx, "WhoAmI", "", 0, func(v *fastjson.Value) error {
		id = Identity{
			UserID:         normalizeGUID(string(v.GetStringBytes("UserId"))),
			BusinessUnitID: normalizeGUID(string(v.GetStringBytes("BusinessUnitId"))),
			OrganizationID: normalizeGUID(string(v.GetStringBytes("OrganizationId"))),
		}
		if id.UserID == "" {
			return errors.Wrap(ErrMalformedPayload, "WhoAmI returned no UserId")
		}
		return nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(err, "who am i")
	}
	return id, nil
}
