// Package mqtt provides MQTT client connectivity for the controls service.
//
// Connections (the module-host processes that talk to real devices) and
// the controls service exchange messages through the broker:
//
//	controls service ↔ MQTT broker ↔ connections
//
// Topics:
//
//	graylogic/connection/{id}/feedbacks                  inbound feedback batches
//	graylogic/connection/{id}/deleted                    inbound connection removal
//	graylogic/connection/{id}/entities                   outbound subscribe/unsubscribe
//	graylogic/connection/{id}/learn/request              outbound learn request
//	graylogic/connection/{id}/learn/response/{requestId} inbound learn answer
//	graylogic/controls/status                            retained online/offline (LWT)
//
// The client reconnects with backoff, replays tracked subscriptions after a
// reconnect, and recovers panics in message handlers.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllConnectionDeleted(), 1, handler)
package mqtt
