package pipeline

import "errors"

var errConfigMissingEventID = errors.New("pipeline: event_id is required")
