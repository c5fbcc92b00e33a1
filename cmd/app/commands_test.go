package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"RecessionLens/internal/domain/errs"
)

func TestWriteJSONMergesExtra(t *testing.T) {
	var buf bytes.Buffer
	v := struct {
		Accuracy float64 `json:"accuracy"`
	}{0.5}
	if err := writeJSON(&buf, v, map[string]interface{}{"artifact_id": "a-1"}); err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["accuracy"] != 0.5 || got["artifact_id"] != "a-1" {
		t.Fatalf("got %v", got)
	}
}

func TestParseFlagErrorsAreConfigErrors(t *testing.T) {
	fs := newFlagSet("train")
	fs.SetOutput(&bytes.Buffer{})
	fs.String("input", "", "")
	err := parse(fs, []string{"-bogus"})
	if errs.ExitCode(err) != 2 {
		t.Fatalf("exit code = %d for %v", errs.ExitCode(err), err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"train", "predict", "evaluate", "ingest", "serve", "logs"} {
		if commands[name] == nil {
			t.Fatalf("command %q missing", name)
		}
	}
}
