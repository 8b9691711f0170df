package serialmux

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/banshee-data/magscan/internal/pipeline"
)

// CurrentState holds the latest config values received from the device
// and is intentionally package-level so admin routes or tests can inspect it.
var CurrentState map[string]any

func HandleSample(session *pipeline.Session, payload string) error {
	session.FeedLine(payload)
	return nil
}

func HandleConfigResponse(payload string) error {
	var configValues map[string]any

	if err := json.Unmarshal([]byte(payload), &configValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new config values
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range configValues {
		CurrentState[k] = v
	}

	log.Printf("Config Line: %+v", payload)

	return nil
}

func HandleEvent(session *pipeline.Session, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeSample:
		if err := HandleSample(session, payload); err != nil {
			return fmt.Errorf("failed to handle sample event: %v", err)
		}
	case EventTypeConfig:
		if err := HandleConfigResponse(payload); err != nil {
			return fmt.Errorf("failed to handle config response: %v", err)
		}
	default:
		log.Printf("unknown event type: %s", payload)
	}
	return nil
}
