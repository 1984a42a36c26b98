// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/devblok/vkframe/core"
	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// StaticResources holds the embedded default configuration.
var StaticResources packr.Box

func init() {
	StaticResources = packr.NewBox("./config")
}

type configuration struct {
	Width         uint32
	Height        uint32
	SwapchainSize uint32
	Device        int
	Debug         bool
	LogLevel      log.Level
	WaitTimeout   time.Duration
	TextureSize   int
	PipelineCache string
	Time          core.TimeConfiguration
}

// loadConfiguration reads the embedded defaults, then lets the
// environment and a local .env file override them.
func loadConfiguration() (configuration, error) {
	raw, err := StaticResources.FindString("default.env")
	if err != nil {
		return configuration{}, fmt.Errorf("packr.FindString(default.env): %v", err)
	}
	defaults, err := godotenv.Unmarshal(raw)
	if err != nil {
		return configuration{}, fmt.Errorf("godotenv.Unmarshal(default.env): %v", err)
	}
	return parseConfiguration(func(key string) string {
		return envy.Get(key, defaults[key])
	})
}

func parseConfiguration(get func(key string) string) (configuration, error) {
	var (
		cfg  configuration
		errs []error
	)
	uint32Value := func(key string) uint32 {
		v, err := strconv.ParseUint(get(key), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", key, err))
		}
		return uint32(v)
	}
	intValue := func(key string) int {
		v, err := strconv.Atoi(get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", key, err))
		}
		return v
	}
	durationValue := func(key string) time.Duration {
		v, err := time.ParseDuration(get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", key, err))
		}
		return v
	}

	cfg.Width = uint32Value("VKFRAME_WIDTH")
	cfg.Height = uint32Value("VKFRAME_HEIGHT")
	cfg.SwapchainSize = uint32Value("VKFRAME_SWAPCHAIN_SIZE")
	cfg.Device = intValue("VKFRAME_DEVICE")
	cfg.TextureSize = intValue("VKFRAME_TEXTURE_SIZE")
	cfg.WaitTimeout = durationValue("VKFRAME_WAIT_TIMEOUT")
	cfg.PipelineCache = get("VKFRAME_PIPELINE_CACHE")
	cfg.Time = core.TimeConfiguration{
		FramesPerSecond: intValue("VKFRAME_FPS"),
		EventPollDelay:  durationValue("VKFRAME_EVENT_POLL_DELAY"),
	}

	debug, err := strconv.ParseBool(get("VKFRAME_DEBUG"))
	if err != nil {
		errs = append(errs, fmt.Errorf("VKFRAME_DEBUG: %v", err))
	}
	cfg.Debug = debug

	level, err := log.ParseLevel(get("VKFRAME_LOG_LEVEL"))
	if err != nil {
		errs = append(errs, fmt.Errorf("VKFRAME_LOG_LEVEL: %v", err))
	}
	cfg.LogLevel = level

	if len(errs) > 0 {
		return configuration{}, fmt.Errorf("main.parseConfiguration(): %v", errs)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return configuration{}, fmt.Errorf("main.parseConfiguration(): window size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TextureSize <= 0 {
		return configuration{}, fmt.Errorf("main.parseConfiguration(): texture size %d", cfg.TextureSize)
	}
	return cfg, nil
}
