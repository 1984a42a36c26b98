// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/devblok/vkframe/device"
)

// TransitionConfig holds the access masks and stages of a layout
// transition barrier.
type TransitionConfig struct {
	SrcAccess device.AccessFlags
	DstAccess device.AccessFlags
	SrcStage  device.PipelineStageFlags
	DstStage  device.PipelineStageFlags
}

type layoutPair struct {
	old, new device.ImageLayout
}

// An image is uploaded to, optionally used as a blit source to generate
// its mip chain, and finally sampled.
var transitions = map[layoutPair]TransitionConfig{
	{device.ImageLayoutUndefined, device.ImageLayoutTransferDstOptimal}: {
		DstAccess: device.AccessTransferWrite,
		SrcStage:  device.PipelineStageTopOfPipe,
		DstStage:  device.PipelineStageTransfer,
	},
	{device.ImageLayoutTransferDstOptimal, device.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: device.AccessTransferWrite,
		DstAccess: device.AccessShaderRead,
		SrcStage:  device.PipelineStageTransfer,
		DstStage:  device.PipelineStageFragmentShader,
	},
	{device.ImageLayoutTransferDstOptimal, device.ImageLayoutTransferSrcOptimal}: {
		SrcAccess: device.AccessTransferWrite,
		DstAccess: device.AccessTransferRead,
		SrcStage:  device.PipelineStageTransfer,
		DstStage:  device.PipelineStageTransfer,
	},
	{device.ImageLayoutTransferSrcOptimal, device.ImageLayoutShaderReadOnlyOptimal}: {
		SrcAccess: device.AccessTransferRead,
		DstAccess: device.AccessShaderRead,
		SrcStage:  device.PipelineStageTransfer,
		DstStage:  device.PipelineStageFragmentShader,
	},
}

// Transition returns the barrier configuration of a transition from old
// to new. Unsupported pairs fail with ErrUnsupportedTransition.
func Transition(old, new device.ImageLayout) (TransitionConfig, error) {
	cfg, ok := transitions[layoutPair{old, new}]
	if !ok {
		return TransitionConfig{}, fmt.Errorf("core.Transition(%s, %s): %w", old, new, ErrUnsupportedTransition)
	}
	return cfg, nil
}
