package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "help requested", err: &flags.Error{Type: flags.ErrHelp}, want: 0},
		{name: "unknown flag", err: &flags.Error{Type: flags.ErrUnknownFlag, Message: `unknown flag "frobnicate"`}, want: 2},
		{name: "wrapped usage error", err: fmt.Errorf("parse error: %w", &flags.Error{Type: flags.ErrRequired}), want: 2},
		{name: "operation failure", err: errors.New("compressed 1/2 files"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
