package engine

import (
	iface "ViewfinderOverlay/interface"
	"errors"
	"fmt"
	"os"
	"strings"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const READY = 0x0003
const CLOSED = 0x0004

// EntityLabel is the placeholder class a detector reports when it could not
// decide on anything more specific.
const EntityLabel = "Entity"

const (
	DefaultConfidenceThreshold = 0.5
	DefaultMaxLabelsPerObject  = 3
)

var (
	ErrDetectorInit   = errors.New("detector initialization failed")
	ErrDetection      = errors.New("detection failed")
	ErrNoDetections   = errors.New("no detections")
	ErrDetectorClosed = errors.New("detector is closed")
)

// Options are fixed when a Detector is built.
type Options struct {
	Mode                  iface.DetectorMode
	EnableClassification  bool
	EnableMultipleObjects bool
	ConfidenceThreshold   float32
	MaxLabelsPerObject    int
}

func DefaultOptions() Options {
	return Options{
		Mode:                  iface.SingleImage,
		EnableClassification:  true,
		EnableMultipleObjects: true,
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		MaxLabelsPerObject:    DefaultMaxLabelsPerObject,
	}
}

func (o Options) engineConfig(modelPath string, names []string) iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath:             modelPath,
		Names:                 iface.NamesConf{IsFile: false, Data: names},
		Mode:                  o.Mode,
		EnableClassification:  o.EnableClassification,
		EnableMultipleObjects: o.EnableMultipleObjects,
		ConfidenceThreshold:   o.ConfidenceThreshold,
		MaxLabelsPerObject:    o.MaxLabelsPerObject,
	}
}

// ReadLinesReadFile returns the non-empty lines of a text file, tolerating CRLF.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(b), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func resolveNames(names iface.NamesConf) ([]string, error) {
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, fmt.Errorf("names file must be a path, got %T", names.Data)
		}
		return ReadLinesReadFile(path)
	}
	switch v := names.Data.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string(nil), v...), nil
	default:
		return nil, fmt.Errorf("names must be a []string or a file path, got %T", names.Data)
	}
}
