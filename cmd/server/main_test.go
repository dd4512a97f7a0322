package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLogFormat(t *testing.T) {
	assert.Contains(t, accessLogFormat("DEBUG"), "${body}")
	assert.NotContains(t, accessLogFormat("info"), "${body}")
	assert.NotContains(t, accessLogFormat(""), "${queryParams}")
}
