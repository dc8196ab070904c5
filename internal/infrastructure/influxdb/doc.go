// Package influxdb records feedback value history for the controls service.
//
// Every feedback value that changes while routed to a control is written
// as a point in the feedback_values measurement, tagged with control_id,
// entity_id and connection_id. History is optional and only active when
// influxdb.enabled is set.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteFeedbackValue("button-1", "fb-3", "knx-1", true)
//
// Writes are non-blocking and batched (batch_size, flush_interval);
// failures are delivered to the SetOnError callback.
package influxdb
