package tts

import (
	"encoding/json"
	"fmt"
)

// Wire protocol of the DashScope duplex inference endpoint.
const (
	actionRunTask      = "run-task"
	actionContinueTask = "continue-task"
	actionFinishTask   = "finish-task"
	streamingDuplex    = "duplex"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"

	taskGroupAudio      = "audio"
	taskTTS             = "tts"
	functionSynthesizer = "SpeechSynthesizer"
	textTypePlain       = "PlainText"
)

type commandHeader struct {
	Action    string `json:"action"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming"`
}

type commandPayload struct {
	TaskGroup  string      `json:"task_group,omitempty"`
	Task       string      `json:"task,omitempty"`
	Function   string      `json:"function,omitempty"`
	Model      string      `json:"model,omitempty"`
	Parameters *parameters `json:"parameters,omitempty"`
	Input      any         `json:"input"`
}

type command struct {
	Header  commandHeader  `json:"header"`
	Payload commandPayload `json:"payload"`
}

// parameters is the synthesis configuration carried by run-task.
type parameters struct {
	TextType   string  `json:"text_type"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Volume     int     `json:"volume"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
}

type textInput struct {
	Text string `json:"text"`
}

type emptyInput struct{}

type eventHeader struct {
	TaskID       string `json:"task_id"`
	Event        string `json:"event"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// event is a control frame sent by the remote side.
type event struct {
	Header  eventHeader     `json:"header"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newRunTask(taskID, model string, params parameters) command {
	return command{
		Header: commandHeader{Action: actionRunTask, TaskID: taskID, Streaming: streamingDuplex},
		Payload: commandPayload{
			TaskGroup:  taskGroupAudio,
			Task:       taskTTS,
			Function:   functionSynthesizer,
			Model:      model,
			Parameters: &params,
			Input:      emptyInput{},
		},
	}
}

func newContinueTask(taskID, text string) command {
	return command{
		Header:  commandHeader{Action: actionContinueTask, TaskID: taskID, Streaming: streamingDuplex},
		Payload: commandPayload{Input: textInput{Text: text}},
	}
}

func newFinishTask(taskID string) command {
	return command{
		Header:  commandHeader{Action: actionFinishTask, TaskID: taskID, Streaming: streamingDuplex},
		Payload: commandPayload{Input: emptyInput{}},
	}
}

// parseEvent decodes a control frame. A frame without an event name is
// treated as malformed.
func parseEvent(data []byte) (*event, error) {
	var ev event

	err := json.Unmarshal(data, &ev)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if ev.Header.Event == "" {
		return nil, errMissingEvent
	}

	return &ev, nil
}
