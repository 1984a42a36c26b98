// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"fmt"

	"github.com/devblok/vkframe/core"
)

// GroupSize is the number of semaphores in a signal or wait group, one
// per frame slot.
const GroupSize = core.FramesInFlight

// Cycle identifies a frame. Index counts frames, SubIndex is the frame
// slot the frame uses.
type Cycle struct {
	Index    uint64
	SubIndex int
}

// Next returns the cycle following c.
func (c Cycle) Next() Cycle {
	return Cycle{Index: c.Index + 1, SubIndex: (c.SubIndex + 1) % core.FramesInFlight}
}

func (c Cycle) String() string {
	return fmt.Sprintf("%d/%d", c.Index, c.SubIndex)
}
