// Package modulehost links the controls service to the connection modules
// over MQTT.
//
// Outbound, the bridge tells a connection which entities to report on
// (graylogic/connection/{id}/entities) and asks it for learned options
// (graylogic/connection/{id}/learn/request). Inbound, it applies feedback
// batches, connection deletions and learn responses.
//
//	bridge, err := modulehost.NewBridge(modulehost.BridgeOptions{
//	    MQTTClient:   mqttClient,
//	    LearnTimeout: cfg.GetLearnTimeout(),
//	    Logger:       log,
//	})
//	registry := control.NewRegistry(control.Deps{Host: bridge, Learn: bridge, ...})
//	if err := bridge.Start(ctx, registry); err != nil { ... }
//	defer bridge.Stop()
package modulehost
