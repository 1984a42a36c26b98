// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func defaults(c *qt.C) map[string]string {
	raw, err := StaticResources.FindString("default.env")
	c.Assert(err, qt.IsNil)
	env, err := godotenv.Unmarshal(raw)
	c.Assert(err, qt.IsNil)
	return env
}

func TestDefaultConfiguration(t *testing.T) {
	c := qt.New(t)
	env := defaults(c)
	cfg, err := parseConfiguration(func(key string) string { return env[key] })
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Width, qt.Equals, uint32(800))
	c.Assert(cfg.Height, qt.Equals, uint32(600))
	c.Assert(cfg.SwapchainSize, qt.Equals, uint32(3))
	c.Assert(cfg.Debug, qt.Equals, false)
	c.Assert(cfg.LogLevel, qt.Equals, log.InfoLevel)
	c.Assert(cfg.WaitTimeout, qt.Equals, 2*time.Second)
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 60)
	c.Assert(cfg.Time.EventPollDelay, qt.Equals, time.Millisecond)
	c.Assert(cfg.PipelineCache, qt.Equals, "pipelinecache.kar")
}

func TestConfigurationOverride(t *testing.T) {
	c := qt.New(t)
	env := defaults(c)
	env["VKFRAME_WIDTH"] = "1280"
	env["VKFRAME_DEBUG"] = "true"
	cfg, err := parseConfiguration(func(key string) string { return env[key] })
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Width, qt.Equals, uint32(1280))
	c.Assert(cfg.Debug, qt.Equals, true)
}

func TestConfigurationErrors(t *testing.T) {
	for key, value := range map[string]string{
		"VKFRAME_WIDTH":        "wide",
		"VKFRAME_FPS":          "",
		"VKFRAME_WAIT_TIMEOUT": "2",
		"VKFRAME_LOG_LEVEL":    "loud",
		"VKFRAME_TEXTURE_SIZE": "0",
		"VKFRAME_HEIGHT":       "0",
	} {
		key, value := key, value
		t.Run(key, func(t *testing.T) {
			c := qt.New(t)
			env := defaults(c)
			env[key] = value
			_, err := parseConfiguration(func(k string) string { return env[k] })
			c.Assert(err, qt.Not(qt.IsNil))
		})
	}
}
