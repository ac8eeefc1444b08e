package env

import (
	"strings"
	"testing"
)

type sampleConfig struct {
	Name      string  `env:"SAMPLE_NAME" envDefault:"memtier"`
	Threshold float64 `env:"SAMPLE_THRESHOLD" envDefault:"0.7"`
	Batch     int     `env:"SAMPLE_BATCH"`
	hidden    string  `env:"SAMPLE_HIDDEN"`
	NoTag     string
}

func TestMarshalEnv_Defaults(t *testing.T) {
	out, err := MarshalEnv(&sampleConfig{})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "SAMPLE_NAME=memtier") {
		t.Errorf("expected default name, got:\n%s", out)
	}
	if !strings.Contains(out, "SAMPLE_THRESHOLD=0.7") {
		t.Errorf("expected default threshold, got:\n%s", out)
	}
	// zero value without a default is omitted
	if strings.Contains(out, "SAMPLE_BATCH") {
		t.Errorf("expected batch to be omitted, got:\n%s", out)
	}
	if strings.Contains(out, "SAMPLE_HIDDEN") || strings.Contains(out, "NoTag") {
		t.Errorf("unexpected fields in output:\n%s", out)
	}
}

func TestMarshalEnv_SetValuesWin(t *testing.T) {
	out, err := MarshalEnv(&sampleConfig{Name: "custom", Batch: 25})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "SAMPLE_NAME=custom") {
		t.Errorf("expected explicit name, got:\n%s", out)
	}
	if !strings.Contains(out, "SAMPLE_BATCH=25") {
		t.Errorf("expected batch, got:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected trailing newline")
	}
}
