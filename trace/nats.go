package trace

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the project name to form the publish subject.
const SubjectPrefix = "chainlab.trace."

// NATSSink publishes runs as JSON on chainlab.trace.<project>.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// DialNATS connects to url and returns a sink that closes the connection
// on Close.
func DialNATS(url, project string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("chainlab-tracer"))
	if err != nil {
		return nil, err
	}
	s := NewNATSSink(nc, project)
	s.owned = true
	return s, nil
}

// NewNATSSink publishes on an existing connection, which the caller keeps
// ownership of.
func NewNATSSink(nc *nats.Conn, project string) *NATSSink {
	return &NATSSink{nc: nc, subject: Subject(project)}
}

// Subject returns the subject runs for project are published on. Characters
// that are not valid inside a subject token are replaced by '_'.
func Subject(project string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, project)
	if token == "" {
		token = "default"
	}
	return SubjectPrefix + token
}

func (s *NATSSink) Export(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

func (s *NATSSink) Close() error {
	if err := s.nc.Flush(); err != nil && !s.nc.IsClosed() {
		return err
	}
	if s.owned {
		s.nc.Close()
	}
	return nil
}
