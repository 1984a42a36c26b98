// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"sort"

	"github.com/devblok/vkframe/device"
)

// PipelineStages are the source and destination stages of a barrier.
// Zero stages default to the top and bottom of the pipe.
type PipelineStages struct {
	Src device.PipelineStageFlags
	Dst device.PipelineStageFlags
}

func (s PipelineStages) resolve() (src, dst device.PipelineStageFlags) {
	src, dst = s.Src, s.Dst
	if src == 0 {
		src = device.PipelineStageTopOfPipe
	}
	if dst == 0 {
		dst = device.PipelineStageBottomOfPipe
	}
	return src, dst
}

func queueFamilies(src, dst uint32) (uint32, uint32) {
	if src == dst {
		return device.QueueFamilyIgnored, device.QueueFamilyIgnored
	}
	return src, dst
}

// ImageBarrierInfo describes the barrier of one image.
type ImageBarrierInfo struct {
	// Aspect defaults to the aspects of the image.
	Aspect device.ImageAspectFlags

	FirstMipLevel uint32

	// MipLevelCount is zero for every level from FirstMipLevel on.
	MipLevelCount uint32

	// Layout is the layout the levels transition to. Undefined and
	// ImageLayoutIgnored leave the layout alone.
	Layout device.ImageLayout

	SrcAccess device.AccessFlags
	DstAccess device.AccessFlags

	// Queue families of an ownership transfer. Equal families mean
	// there is none.
	SrcQueueFamily uint32
	DstQueueFamily uint32
}

func (info ImageBarrierInfo) changesLayout() bool {
	return info.Layout != device.ImageLayoutUndefined && info.Layout != device.ImageLayoutIgnored
}

type imageEntry struct {
	image *Image
	info  ImageBarrierInfo
}

// ImageBarrierState holds at most one barrier entry per image.
type ImageBarrierState struct {
	entries []imageEntry
	index   map[*Image]int

	// entries that change a layout
	changes []int
}

func (s *ImageBarrierState) resolve(img *Image, info ImageBarrierInfo) (ImageBarrierInfo, error) {
	levels := img.MipLevels()
	if info.FirstMipLevel >= levels {
		return info, fmt.Errorf("core.ImageBarrier.Add(%d): level %d of %d: %w", img.id, info.FirstMipLevel, levels, ErrInvalidRange)
	}
	if info.MipLevelCount == 0 {
		info.MipLevelCount = levels - info.FirstMipLevel
	}
	if info.FirstMipLevel+info.MipLevelCount > levels {
		return info, fmt.Errorf("core.ImageBarrier.Add(%d): levels %d+%d of %d: %w", img.id, info.FirstMipLevel, info.MipLevelCount, levels, ErrInvalidRange)
	}
	if info.Aspect == 0 {
		info.Aspect = img.aspect
	}
	return info, nil
}

// Add adds a barrier for img. An image can only be added once, every
// level it needs must be covered by the one info.
func (s *ImageBarrierState) Add(img *Image, info ImageBarrierInfo) error {
	if _, ok := s.index[img]; ok {
		return fmt.Errorf("core.ImageBarrier.Add(%d): %w", img.id, ErrDuplicate)
	}
	info, err := s.resolve(img, info)
	if err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[*Image]int)
	}
	s.index[img] = len(s.entries)
	if info.changesLayout() {
		s.changes = append(s.changes, len(s.entries))
	}
	s.entries = append(s.entries, imageEntry{image: img, info: info})
	return nil
}

// Replace replaces the barrier of img, and adds it when there is none.
func (s *ImageBarrierState) Replace(img *Image, info ImageBarrierInfo) error {
	i, ok := s.index[img]
	if !ok {
		return s.Add(img, info)
	}
	info, err := s.resolve(img, info)
	if err != nil {
		return err
	}
	had := s.entries[i].info.changesLayout()
	s.entries[i].info = info
	switch {
	case had && !info.changesLayout():
		s.dropChange(i)
	case !had && info.changesLayout():
		s.changes = append(s.changes, i)
	}
	return nil
}

// Remove removes the barrier of img.
func (s *ImageBarrierState) Remove(img *Image) error {
	i, ok := s.index[img]
	if !ok {
		return fmt.Errorf("core.ImageBarrier.Remove(%d): %w", img.id, ErrNotFound)
	}
	s.dropChange(i)
	delete(s.index, img)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].image] = j
	}
	for j, c := range s.changes {
		if c > i {
			s.changes[j] = c - 1
		}
	}
	return nil
}

func (s *ImageBarrierState) dropChange(i int) {
	for j, c := range s.changes {
		if c == i {
			s.changes = append(s.changes[:j], s.changes[j+1:]...)
			return
		}
	}
}

// Contains reports whether img has a barrier.
func (s *ImageBarrierState) Contains(img *Image) bool {
	_, ok := s.index[img]
	return ok
}

// Len returns the number of images with a barrier.
func (s *ImageBarrierState) Len() int {
	return len(s.entries)
}

// Reset removes every barrier.
func (s *ImageBarrierState) Reset() {
	s.entries, s.changes = s.entries[:0], s.changes[:0]
	s.index = nil
}

// lock write locks every image in ID order.
func (s *ImageBarrierState) lock() func() {
	images := make([]*Image, len(s.entries))
	for i, e := range s.entries {
		images[i] = e.image
	}
	sort.Slice(images, func(i, j int) bool { return images[i].id < images[j].id })
	for _, img := range images {
		img.mu.Lock()
	}
	return func() {
		for _, img := range images {
			img.mu.Unlock()
		}
	}
}

// native builds the native barriers. A range whose levels are in
// different layouts is split into one barrier per run of equal layouts.
// The images must be locked.
func (s *ImageBarrierState) native() []device.ImageMemoryBarrier {
	var barriers []device.ImageMemoryBarrier
	for _, e := range s.entries {
		src, dst := queueFamilies(e.info.SrcQueueFamily, e.info.DstQueueFamily)
		first, end := e.info.FirstMipLevel, e.info.FirstMipLevel+e.info.MipLevelCount
		for run := first; run < end; {
			old := e.image.layouts[run]
			next := run + 1
			for next < end && e.image.layouts[next] == old {
				next++
			}
			layout := e.info.Layout
			if !e.info.changesLayout() {
				layout = old
			}
			barriers = append(barriers, device.ImageMemoryBarrier{
				SrcAccessMask:       e.info.SrcAccess,
				DstAccessMask:       e.info.DstAccess,
				OldLayout:           old,
				NewLayout:           layout,
				SrcQueueFamilyIndex: src,
				DstQueueFamilyIndex: dst,
				Image:               e.image.handle,
				SubresourceRange: device.ImageSubresourceRange{
					AspectMask:   e.info.Aspect,
					BaseMipLevel: run,
					LevelCount:   next - run,
					LayerCount:   e.image.layers,
				},
			})
			run = next
		}
	}
	return barriers
}

// applyChanges updates the cached layouts. The images must be locked.
func (s *ImageBarrierState) applyChanges() {
	for _, i := range s.changes {
		e := s.entries[i]
		for l := e.info.FirstMipLevel; l < e.info.FirstMipLevel+e.info.MipLevelCount; l++ {
			e.image.layouts[l] = e.info.Layout
		}
	}
}

// transition adds a layout transition of levels [first, first+count) of
// img, which must all be in the same layout, and returns its stages.
func (s *ImageBarrierState) transition(img *Image, layout device.ImageLayout, first, count uint32) (TransitionConfig, error) {
	info, err := s.resolve(img, ImageBarrierInfo{FirstMipLevel: first, MipLevelCount: count})
	if err != nil {
		return TransitionConfig{}, err
	}
	img.mu.RLock()
	old := img.layouts[info.FirstMipLevel]
	for l := info.FirstMipLevel + 1; l < info.FirstMipLevel+info.MipLevelCount; l++ {
		if img.layouts[l] != old {
			img.mu.RUnlock()
			return TransitionConfig{}, fmt.Errorf("core.AddTransition(%d): levels %d and %d are in layouts %s and %s: %w",
				img.id, info.FirstMipLevel, l, old, img.layouts[l], ErrUnsupportedTransition)
		}
	}
	img.mu.RUnlock()
	cfg, err := Transition(old, layout)
	if err != nil {
		return cfg, err
	}
	info.Layout = layout
	info.SrcAccess, info.DstAccess = cfg.SrcAccess, cfg.DstAccess
	return cfg, s.Add(img, info)
}

// BufferBarrierInfo describes the barrier of a range of one buffer.
type BufferBarrierInfo struct {
	Offset uint64

	// Size is zero for the rest of the buffer.
	Size uint64

	SrcAccess device.AccessFlags
	DstAccess device.AccessFlags

	SrcQueueFamily uint32
	DstQueueFamily uint32
}

type bufferEntry struct {
	buffer *Buffer
	info   BufferBarrierInfo
}

// BufferBarrierState holds at most one barrier entry per buffer.
type BufferBarrierState struct {
	entries []bufferEntry
	index   map[*Buffer]int
}

func (s *BufferBarrierState) resolve(b *Buffer, info BufferBarrierInfo) (BufferBarrierInfo, error) {
	if info.Offset >= b.size {
		return info, fmt.Errorf("core.BufferBarrier.Add(%d): offset %d of %d: %w", b.id, info.Offset, b.size, ErrInvalidRange)
	}
	if info.Size == 0 {
		info.Size = b.size - info.Offset
	}
	if info.Offset+info.Size > b.size {
		return info, fmt.Errorf("core.BufferBarrier.Add(%d): range %d+%d of %d: %w", b.id, info.Offset, info.Size, b.size, ErrInvalidRange)
	}
	return info, nil
}

// Add adds a barrier for b.
func (s *BufferBarrierState) Add(b *Buffer, info BufferBarrierInfo) error {
	if _, ok := s.index[b]; ok {
		return fmt.Errorf("core.BufferBarrier.Add(%d): %w", b.id, ErrDuplicate)
	}
	info, err := s.resolve(b, info)
	if err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[*Buffer]int)
	}
	s.index[b] = len(s.entries)
	s.entries = append(s.entries, bufferEntry{buffer: b, info: info})
	return nil
}

// Replace replaces the barrier of b, and adds it when there is none.
func (s *BufferBarrierState) Replace(b *Buffer, info BufferBarrierInfo) error {
	i, ok := s.index[b]
	if !ok {
		return s.Add(b, info)
	}
	info, err := s.resolve(b, info)
	if err != nil {
		return err
	}
	s.entries[i].info = info
	return nil
}

// Remove removes the barrier of b.
func (s *BufferBarrierState) Remove(b *Buffer) error {
	i, ok := s.index[b]
	if !ok {
		return fmt.Errorf("core.BufferBarrier.Remove(%d): %w", b.id, ErrNotFound)
	}
	delete(s.index, b)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].buffer] = j
	}
	return nil
}

// Contains reports whether b has a barrier.
func (s *BufferBarrierState) Contains(b *Buffer) bool {
	_, ok := s.index[b]
	return ok
}

// Len returns the number of buffers with a barrier.
func (s *BufferBarrierState) Len() int {
	return len(s.entries)
}

// Reset removes every barrier.
func (s *BufferBarrierState) Reset() {
	s.entries = s.entries[:0]
	s.index = nil
}

func (s *BufferBarrierState) native() []device.BufferMemoryBarrier {
	if len(s.entries) == 0 {
		return nil
	}
	barriers := make([]device.BufferMemoryBarrier, len(s.entries))
	for i, e := range s.entries {
		src, dst := queueFamilies(e.info.SrcQueueFamily, e.info.DstQueueFamily)
		barriers[i] = device.BufferMemoryBarrier{
			SrcAccessMask:       e.info.SrcAccess,
			DstAccessMask:       e.info.DstAccess,
			SrcQueueFamilyIndex: src,
			DstQueueFamilyIndex: dst,
			Buffer:              e.buffer.handle,
			Offset:              e.info.Offset,
			Size:                e.info.Size,
		}
	}
	return barriers
}

// execute records one barrier of images and buffers, then applies the
// layout changes of images while they are still locked.
func execute(op string, cb CmdBuffer, stages PipelineStages, images *ImageBarrierState, buffers *BufferBarrierState) error {
	c := cb.base()
	if err := c.recording(op); err != nil {
		return err
	}
	if images != nil {
		defer images.lock()()
	}
	var (
		imageBarriers  []device.ImageMemoryBarrier
		bufferBarriers []device.BufferMemoryBarrier
	)
	if images != nil {
		imageBarriers = images.native()
	}
	if buffers != nil {
		bufferBarriers = buffers.native()
	}
	src, dst := stages.resolve()
	c.dev().native.CmdPipelineBarrier(c.handle, src, dst, bufferBarriers, imageBarriers)
	if images != nil {
		images.applyChanges()
	}
	return nil
}

// ImageBarrier is a barrier of images only.
type ImageBarrier struct {
	PipelineStages
	ImageBarrierState
}

// AddTransition adds a transition of levels [first, first+count) of img
// to layout and widens the stages of the barrier to cover it. A zero
// count selects every remaining level.
func (b *ImageBarrier) AddTransition(img *Image, layout device.ImageLayout, first, count uint32) error {
	cfg, err := b.transition(img, layout, first, count)
	if err != nil {
		return err
	}
	b.Src |= cfg.SrcStage
	b.Dst |= cfg.DstStage
	return nil
}

// Execute records the barrier into cb and applies its layout changes.
// The entries are kept.
func (b *ImageBarrier) Execute(cb CmdBuffer) error {
	return execute("core.ImageBarrier.Execute", cb, b.PipelineStages, &b.ImageBarrierState, nil)
}

// BufferBarrier is a barrier of buffers only.
type BufferBarrier struct {
	PipelineStages
	BufferBarrierState
}

// Execute records the barrier into cb. The entries are kept.
func (b *BufferBarrier) Execute(cb CmdBuffer) error {
	return execute("core.BufferBarrier.Execute", cb, b.PipelineStages, nil, &b.BufferBarrierState)
}

// PipelineBarrier is a barrier of images and buffers sharing one set of
// stages.
type PipelineBarrier struct {
	PipelineStages
	Images  ImageBarrierState
	Buffers BufferBarrierState
}

// AddTransition is ImageBarrier.AddTransition.
func (b *PipelineBarrier) AddTransition(img *Image, layout device.ImageLayout, first, count uint32) error {
	cfg, err := b.Images.transition(img, layout, first, count)
	if err != nil {
		return err
	}
	b.Src |= cfg.SrcStage
	b.Dst |= cfg.DstStage
	return nil
}

// Execute records the barrier into cb and applies its layout changes.
// The entries are kept.
func (b *PipelineBarrier) Execute(cb CmdBuffer) error {
	return execute("core.PipelineBarrier.Execute", cb, b.PipelineStages, &b.Images, &b.Buffers)
}
