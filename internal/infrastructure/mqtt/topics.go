package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Connection topics follow the scheme
// graylogic/connection/{connectionId}/{channel}[/...].
const (
	TopicPrefix           = "graylogic"
	TopicPrefixConnection = "graylogic/connection"
	TopicPrefixControls   = "graylogic/controls"
)

// Topics provides builders for the controls service MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ConnectionFeedbacks("knx-1")
//	// Returns: "graylogic/connection/knx-1/feedbacks"
type Topics struct{}

// ConnectionFeedbacks carries feedback value batches published by a connection.
func (Topics) ConnectionFeedbacks(connectionID string) string {
	return fmt.Sprintf("%s/%s/feedbacks", TopicPrefixConnection, connectionID)
}

// ConnectionDeleted is published once when a connection is removed.
func (Topics) ConnectionDeleted(connectionID string) string {
	return fmt.Sprintf("%s/%s/deleted", TopicPrefixConnection, connectionID)
}

// ConnectionEntities receives subscribe/unsubscribe notices for entities
// that use the connection.
func (Topics) ConnectionEntities(connectionID string) string {
	return fmt.Sprintf("%s/%s/entities", TopicPrefixConnection, connectionID)
}

// LearnRequest asks a connection to learn options for one entity.
func (Topics) LearnRequest(connectionID string) string {
	return fmt.Sprintf("%s/%s/learn/request", TopicPrefixConnection, connectionID)
}

// LearnResponse carries the answer to a single learn request.
func (Topics) LearnResponse(connectionID, requestID string) string {
	return fmt.Sprintf("%s/%s/learn/response/%s", TopicPrefixConnection, connectionID, requestID)
}

// ServiceStatus is the retained online/offline topic for this service.
func (Topics) ServiceStatus() string {
	return TopicPrefixControls + "/status"
}

// AllConnectionFeedbacks matches feedback batches from every connection.
func (Topics) AllConnectionFeedbacks() string {
	return TopicPrefixConnection + "/+/feedbacks"
}

// AllConnectionDeleted matches deletion notices from every connection.
func (Topics) AllConnectionDeleted() string {
	return TopicPrefixConnection + "/+/deleted"
}

// AllLearnResponses matches learn responses from every connection.
func (Topics) AllLearnResponses() string {
	return TopicPrefixConnection + "/+/learn/response/+"
}

// ConnectionIDFromTopic extracts {connectionId} from a connection topic.
func ConnectionIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixConnection+"/")
	if !ok {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

// RequestIDFromTopic extracts {requestId} from a learn response topic.
func RequestIDFromTopic(topic string) (string, bool) {
	idx := strings.LastIndex(topic, "/learn/response/")
	if idx < 0 {
		return "", false
	}
	id := topic[idx+len("/learn/response/"):]
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
