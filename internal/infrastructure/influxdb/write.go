package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// feedbackMeasurement is the measurement holding feedback value history.
const feedbackMeasurement = "feedback_values"

// WriteFeedbackValue records a changed feedback value.
//
// Booleans are stored as 0/1 in the "value" field, numbers as float64 and
// strings in the "text" field. Other shapes (advanced style partials) are
// not recorded. The write is non-blocking.
//
//	client.WriteFeedbackValue("button-1", "fb-3", "knx-1", true)
func (c *Client) WriteFeedbackValue(controlID, entityID, connectionID string, value any) {
	if !c.IsConnected() {
		return
	}

	point, ok := feedbackPoint(controlID, entityID, connectionID, value, time.Now())
	if !ok {
		return
	}
	c.writer.WritePoint(point)
}

// feedbackPoint builds the point for a feedback value; ok is false when the
// value has no numeric or text form.
func feedbackPoint(controlID, entityID, connectionID string, value any, ts time.Time) (*write.Point, bool) {
	fields := make(map[string]interface{}, 1)
	switch v := value.(type) {
	case bool:
		if v {
			fields["value"] = 1.0
		} else {
			fields["value"] = 0.0
		}
	case string:
		fields["text"] = v
	default:
		f, ok := toFloat(value)
		if !ok {
			return nil, false
		}
		fields["value"] = f
	}

	tags := map[string]string{
		"control_id":    controlID,
		"entity_id":     entityID,
		"connection_id": connectionID,
	}
	return write.NewPoint(feedbackMeasurement, tags, fields, ts), true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	default:
		return 0, false
	}
}
