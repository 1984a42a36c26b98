// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package devicetest provides an in-memory device.Device. Submissions
// execute immediately, or are held until released, which lets tests
// observe in-flight state. Misuse that a validation layer would report
// is collected and returned by Validation.
package devicetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/devblok/vkframe/device"
)

const alignment = 256

// Submission is a recorded queue submission. Slices are copies taken at
// submit time.
type Submission struct {
	Queue  device.Queue
	Submit device.Submit
	Fence  device.Fence
}

// Command is one recorded command. Only the fields relevant to Kind
// are set.
type Command struct {
	Kind        string
	SrcStage    device.PipelineStageFlags
	DstStage    device.PipelineStageFlags
	Images      []device.ImageMemoryBarrier
	Buffers     []device.BufferMemoryBarrier
	Secondaries []device.CommandBuffer
	Src, Dst    uint64
	Layout      device.ImageLayout
	Blits       []device.ImageBlit
	Copies      []device.BufferImageCopy
	Begin       device.RenderPassBegin
}

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
	cmdPending
)

type semaphore struct {
	timeline bool
	value    uint64
	signaled bool

	// consumed counts present waits issued while the signal was held.
	consumed int
}

type commandBuffer struct {
	pool     device.CommandPool
	level    device.CommandBufferLevel
	state    cmdState
	oneTime  bool
	commands []Command
	resets   int
}

type object struct {
	kind   string
	data   []byte
	parent uint64
	bound  device.Memory
	images []device.Image
	props  device.SwapchainProperties
	levels uint32
	next   uint32
}

type pending struct {
	queue  device.Queue
	submit device.Submit
	fence  device.Fence
}

// Device is a fake device.Device. It is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	info     device.PhysicalDeviceInfo
	limits   device.Limits
	memory   device.MemoryProperties
	families []device.QueueFamily

	next       uint64
	queues     map[[2]uint32]device.Queue
	semaphores map[device.Semaphore]*semaphore
	fences     map[device.Fence]bool
	buffers    map[device.CommandBuffer]*commandBuffer
	objects    map[uint64]*object

	hold    bool
	pending []pending

	submits    []Submission
	presents   []device.Present
	presentRes []device.Result
	acquireRes []device.Result
	failures   map[string][]device.Result
	validation []string
	destroyed  bool
}

// New creates a fake device with two queue families: family 0 supports
// graphics, compute, transfer and present with two queues, family 1 is
// a single transfer-only queue.
func New() *Device {
	d := &Device{
		info: device.PhysicalDeviceInfo{
			ID:                0x1234,
			VendorID:          0x10de,
			DriverVersion:     1,
			APIVersion:        1<<22 | 2<<12,
			Name:              "devicetest",
			PipelineCacheUUID: [16]byte{'d', 'e', 'v', 'i', 'c', 'e', 't', 'e', 's', 't'},
			Memory:            3 << 30,
		},
		limits: device.Limits{
			FramebufferColorSampleCounts: device.SampleCount1 | device.SampleCount2 | device.SampleCount4 | device.SampleCount8,
			FramebufferDepthSampleCounts: device.SampleCount1 | device.SampleCount2 | device.SampleCount4 | device.SampleCount8,
			MaxImageDimension2D:          16384,
		},
		memory: device.MemoryProperties{
			Types: []device.MemoryType{
				{PropertyFlags: device.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{PropertyFlags: device.MemoryPropertyHostVisible | device.MemoryPropertyHostCoherent, HeapIndex: 1},
			},
			HeapSizes: []uint64{2 << 30, 1 << 30},
		},
		families: []device.QueueFamily{
			{Index: 0, Flags: device.QueueGraphics | device.QueueCompute | device.QueueTransfer, Count: 2, Present: true},
			{Index: 1, Flags: device.QueueTransfer, Count: 1},
		},
		queues:     make(map[[2]uint32]device.Queue),
		semaphores: make(map[device.Semaphore]*semaphore),
		fences:     make(map[device.Fence]bool),
		buffers:    make(map[device.CommandBuffer]*commandBuffer),
		objects:    make(map[uint64]*object),
		failures:   make(map[string][]device.Result),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// SetQueueFamilies replaces the queue families. Call before any queue
// is retrieved.
func (d *Device) SetQueueFamilies(families []device.QueueFamily) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.families = families
}

// SetLimits replaces the device limits.
func (d *Device) SetLimits(limits device.Limits) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits = limits
}

// Fail makes the next call of op return r. Calls queue up, so failing
// the second call of op takes Fail(op, Success) followed by Fail(op, r).
func (d *Device) Fail(op string, r device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], r)
}

// PresentResults queues the results of the next present operations.
// Once the queue is empty presents succeed.
func (d *Device) PresentResults(results ...device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentRes = append(d.presentRes, results...)
}

// AcquireResults queues the results of the next image acquisitions.
func (d *Device) AcquireResults(results ...device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireRes = append(d.acquireRes, results...)
}

// Hold stops submissions from executing until Release is called.
func (d *Device) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = true
}

// Release executes up to n held submissions in order, all of them when n
// is negative, and switches back to immediate execution once nothing is
// left on hold.
func (d *Device) Release(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 || n > len(d.pending) {
		n = len(d.pending)
	}
	for _, p := range d.pending[:n] {
		d.execute(p)
	}
	d.pending = d.pending[n:]
	if len(d.pending) == 0 {
		d.hold = false
	}
	d.cond.Broadcast()
}

// Pending returns the number of submissions on hold.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Submits returns every submission made so far.
func (d *Device) Submits() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submits...)
}

// Presents returns every present operation made so far.
func (d *Device) Presents() []device.Present {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]device.Present(nil), d.presents...)
}

// Commands returns the commands recorded into buffer since it was last
// reset.
func (d *Device) Commands(buffer device.CommandBuffer) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.buffers[buffer]; ok {
		return append([]Command(nil), cb.commands...)
	}
	return nil
}

// Resets returns how many times buffer was reset.
func (d *Device) Resets(buffer device.CommandBuffer) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.buffers[buffer]; ok {
		return cb.resets
	}
	return 0
}

// Recording reports whether buffer is in the recording state.
func (d *Device) Recording(buffer device.CommandBuffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.buffers[buffer]
	return ok && cb.state == cmdRecording
}

// Signaled reports whether a binary semaphore is signaled.
func (d *Device) Signaled(s device.Semaphore) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sem, ok := d.semaphores[s]; ok {
		return sem.signaled
	}
	return false
}

// MemoryData returns the backing store of a memory allocation.
func (d *Device) MemoryData(m device.Memory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(m)]; ok {
		return o.data
	}
	return nil
}

// BoundMemory returns the memory bound to a buffer or image handle.
func (d *Device) BoundMemory(handle uint64) device.Memory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[handle]; ok {
		return o.bound
	}
	return 0
}

// Live returns the number of live objects of every kind, excluding
// queues and the images owned by swapchains.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	live := make(map[string]int)
	if n := len(d.semaphores); n > 0 {
		live["semaphore"] = n
	}
	if n := len(d.fences); n > 0 {
		live["fence"] = n
	}
	if n := len(d.buffers); n > 0 {
		live["command buffer"] = n
	}
	for _, o := range d.objects {
		if o.kind != "swapchain image" {
			live[o.kind]++
		}
	}
	return live
}

// Validation returns the misuse reports collected so far.
func (d *Device) Validation() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.validation...)
}

func (d *Device) report(format string, args ...interface{}) {
	d.validation = append(d.validation, fmt.Sprintf(format, args...))
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) injected(op string) device.Result {
	queued := d.failures[op]
	if len(queued) == 0 {
		return device.Success
	}
	d.failures[op] = queued[1:]
	return queued[0]
}

func (d *Device) create(op, kind string) (uint64, device.Result) {
	if r := d.injected(op); r != device.Success {
		return 0, r
	}
	h := d.handle()
	d.objects[h] = &object{kind: kind}
	return h, device.Success
}

func (d *Device) destroy(h uint64, kind string) {
	if h == 0 {
		return
	}
	o, ok := d.objects[h]
	if !ok || o.kind != kind {
		d.report("destroy of unknown %s %d", kind, h)
		return
	}
	delete(d.objects, h)
}

// Info implements device.Device
func (d *Device) Info() device.PhysicalDeviceInfo {
	return d.info
}

// Limits implements device.Device
func (d *Device) Limits() device.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limits
}

// MemoryProperties implements device.Device
func (d *Device) MemoryProperties() device.MemoryProperties {
	return d.memory
}

// QueueFamilies implements device.Device
func (d *Device) QueueFamilies() []device.QueueFamily {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]device.QueueFamily(nil), d.families...)
}

// GetQueue implements device.Device
func (d *Device) GetQueue(family, index uint32) (device.Queue, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("GetQueue"); r != device.Success {
		return 0, r
	}
	if int(family) >= len(d.families) || index >= d.families[family].Count {
		d.report("queue %d/%d does not exist", family, index)
		return 0, device.ErrorInitializationFailed
	}
	key := [2]uint32{family, index}
	if q, ok := d.queues[key]; ok {
		return q, device.Success
	}
	q := device.Queue(d.handle())
	d.queues[key] = q
	return q, device.Success
}

func (d *Device) knownQueue(q device.Queue) bool {
	for _, known := range d.queues {
		if known == q {
			return true
		}
	}
	return false
}

// QueueSubmit implements device.Device
func (d *Device) QueueSubmit(queue device.Queue, submits []device.Submit, fence device.Fence) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("QueueSubmit"); r != device.Success {
		return r
	}
	if !d.knownQueue(queue) {
		d.report("submit to unknown queue %d", queue)
		return device.ErrorDeviceLost
	}
	for i, s := range submits {
		s = copySubmit(s)
		if len(s.WaitStages) != len(s.WaitSemaphores) {
			d.report("submit has %d wait semaphores but %d stages", len(s.WaitSemaphores), len(s.WaitStages))
		}
		if s.WaitValues != nil && len(s.WaitValues) != len(s.WaitSemaphores) {
			d.report("submit has %d wait semaphores but %d values", len(s.WaitSemaphores), len(s.WaitValues))
		}
		if s.SignalValues != nil && len(s.SignalValues) != len(s.SignalSemaphores) {
			d.report("submit has %d signal semaphores but %d values", len(s.SignalSemaphores), len(s.SignalValues))
		}
		for _, h := range s.CommandBuffers {
			cb, ok := d.buffers[h]
			if !ok {
				d.report("submit of unknown command buffer %d", h)
				continue
			}
			if cb.level != device.CommandBufferLevelPrimary {
				d.report("submit of secondary command buffer %d", h)
			}
			if cb.state != cmdExecutable {
				d.report("submit of command buffer %d that is not executable", h)
			}
			cb.state = cmdPending
		}
		var f device.Fence
		if i == len(submits)-1 {
			f = fence
		}
		d.submits = append(d.submits, Submission{Queue: queue, Submit: s, Fence: f})
		p := pending{queue: queue, submit: s, fence: f}
		if d.hold {
			d.pending = append(d.pending, p)
		} else {
			d.execute(p)
		}
	}
	if len(submits) == 0 && fence != 0 {
		d.fences[fence] = true
	}
	d.cond.Broadcast()
	return device.Success
}

func copySubmit(s device.Submit) device.Submit {
	c := device.Submit{
		WaitSemaphores:   append([]device.Semaphore(nil), s.WaitSemaphores...),
		WaitStages:       append([]device.PipelineStageFlags(nil), s.WaitStages...),
		CommandBuffers:   append([]device.CommandBuffer(nil), s.CommandBuffers...),
		SignalSemaphores: append([]device.Semaphore(nil), s.SignalSemaphores...),
	}
	if s.WaitValues != nil {
		c.WaitValues = append([]uint64{}, s.WaitValues...)
	}
	if s.SignalValues != nil {
		c.SignalValues = append([]uint64{}, s.SignalValues...)
	}
	return c
}

func (d *Device) execute(p pending) {
	for i, h := range p.submit.WaitSemaphores {
		sem, ok := d.semaphores[h]
		if !ok {
			d.report("wait on unknown semaphore %d", h)
			continue
		}
		if sem.timeline {
			var want uint64
			if i < len(p.submit.WaitValues) {
				want = p.submit.WaitValues[i]
			}
			if sem.value < want {
				d.report("wait on timeline semaphore %d for %d, counter is %d", h, want, sem.value)
			}
			continue
		}
		if !sem.signaled {
			d.report("wait on unsignaled binary semaphore %d", h)
		}
		sem.signaled = false
	}
	for _, h := range p.submit.CommandBuffers {
		if cb, ok := d.buffers[h]; ok && cb.state == cmdPending {
			cb.state = cmdExecutable
		}
	}
	for i, h := range p.submit.SignalSemaphores {
		sem, ok := d.semaphores[h]
		if !ok {
			d.report("signal of unknown semaphore %d", h)
			continue
		}
		if sem.timeline {
			var value uint64
			if i < len(p.submit.SignalValues) {
				value = p.submit.SignalValues[i]
			}
			if value <= sem.value {
				d.report("timeline semaphore %d signaled with %d, counter is already %d", h, value, sem.value)
				continue
			}
			sem.value = value
			continue
		}
		if sem.consumed > 0 {
			sem.consumed--
			continue
		}
		if sem.signaled {
			d.report("signal of binary semaphore %d that is already signaled", h)
		}
		sem.signaled = true
	}
	if p.fence != 0 {
		d.fences[p.fence] = true
	}
}

// QueuePresent implements device.Device
func (d *Device) QueuePresent(queue device.Queue, present device.Present) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.knownQueue(queue) {
		d.report("present on unknown queue %d", queue)
		return device.ErrorDeviceLost
	}
	for _, h := range present.WaitSemaphores {
		sem, ok := d.semaphores[h]
		switch {
		case !ok:
			d.report("present waits on unknown semaphore %d", h)
		case sem.timeline:
			d.report("present waits on timeline semaphore %d", h)
		case !sem.signaled && d.hold:
			sem.consumed++
		case !sem.signaled:
			d.report("present waits on unsignaled semaphore %d", h)
		default:
			sem.signaled = false
		}
	}
	d.presents = append(d.presents, device.Present{
		WaitSemaphores: append([]device.Semaphore(nil), present.WaitSemaphores...),
		Swapchains:     append([]device.Swapchain(nil), present.Swapchains...),
		ImageIndices:   append([]uint32(nil), present.ImageIndices...),
	})
	if len(d.presentRes) == 0 {
		return device.Success
	}
	r := d.presentRes[0]
	d.presentRes = d.presentRes[1:]
	return r
}

// QueueWaitIdle implements device.Device
func (d *Device) QueueWaitIdle(queue device.Queue) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("QueueWaitIdle"); r != device.Success {
		return r
	}
	var rest []pending
	for _, p := range d.pending {
		if p.queue == queue {
			d.execute(p)
		} else {
			rest = append(rest, p)
		}
	}
	d.pending = rest
	d.cond.Broadcast()
	return device.Success
}

// WaitIdle implements device.Device
func (d *Device) WaitIdle() device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		d.execute(p)
	}
	d.pending = nil
	d.hold = false
	d.cond.Broadcast()
	return device.Success
}

// CreateSemaphore implements device.Device
func (d *Device) CreateSemaphore() (device.Semaphore, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("CreateSemaphore"); r != device.Success {
		return 0, r
	}
	h := device.Semaphore(d.handle())
	d.semaphores[h] = &semaphore{}
	return h, device.Success
}

// CreateTimelineSemaphore implements device.Device
func (d *Device) CreateTimelineSemaphore(initial uint64) (device.Semaphore, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("CreateTimelineSemaphore"); r != device.Success {
		return 0, r
	}
	h := device.Semaphore(d.handle())
	d.semaphores[h] = &semaphore{timeline: true, value: initial}
	return h, device.Success
}

// DestroySemaphore implements device.Device
func (d *Device) DestroySemaphore(s device.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.semaphores[s]; !ok {
		d.report("destroy of unknown semaphore %d", s)
		return
	}
	delete(d.semaphores, s)
}

// SemaphoreCounterValue implements device.Device
func (d *Device) SemaphoreCounterValue(s device.Semaphore) (uint64, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.semaphores[s]
	if !ok || !sem.timeline {
		d.report("counter value of semaphore %d that is not a timeline semaphore", s)
		return 0, device.ErrorFeatureNotPresent
	}
	return sem.value, device.Success
}

// SignalSemaphore implements device.Device
func (d *Device) SignalSemaphore(s device.Semaphore, value uint64) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.semaphores[s]
	if !ok || !sem.timeline {
		d.report("host signal of semaphore %d that is not a timeline semaphore", s)
		return device.ErrorFeatureNotPresent
	}
	if value <= sem.value {
		d.report("timeline semaphore %d signaled with %d, counter is already %d", s, value, sem.value)
		return device.Success
	}
	sem.value = value
	d.cond.Broadcast()
	return device.Success
}

// WaitSemaphores implements device.Device. It waits for all of the
// semaphores to reach their values.
func (d *Device) WaitSemaphores(semaphores []device.Semaphore, values []uint64, timeout time.Duration) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("WaitSemaphores"); r != device.Success {
		return r
	}
	if len(values) != len(semaphores) {
		d.report("wait on %d semaphores with %d values", len(semaphores), len(values))
		return device.ErrorInitializationFailed
	}
	return d.waitLocked(timeout, func() bool {
		for i, h := range semaphores {
			sem, ok := d.semaphores[h]
			if !ok || !sem.timeline {
				d.report("host wait on semaphore %d that is not a timeline semaphore", h)
				return true
			}
			if sem.value < values[i] {
				return false
			}
		}
		return true
	})
}

// waitLocked blocks until done reports true or timeout elapses. Without
// held submissions nothing can make progress, so it gives up at once.
func (d *Device) waitLocked(timeout time.Duration, done func() bool) device.Result {
	if done() {
		return device.Success
	}
	if timeout == 0 {
		return device.Timeout
	}
	var deadline time.Time
	if timeout != device.WaitForever {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer timer.Stop()
	}
	for !done() {
		if !d.hold && len(d.pending) == 0 && timeout == device.WaitForever {
			d.report("wait can never complete")
			return device.ErrorDeviceLost
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return device.Timeout
		}
		d.cond.Wait()
	}
	return device.Success
}

// CreateFence implements device.Device
func (d *Device) CreateFence(signaled bool) (device.Fence, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("CreateFence"); r != device.Success {
		return 0, r
	}
	h := device.Fence(d.handle())
	d.fences[h] = signaled
	return h, device.Success
}

// DestroyFence implements device.Device
func (d *Device) DestroyFence(f device.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[f]; !ok {
		d.report("destroy of unknown fence %d", f)
		return
	}
	delete(d.fences, f)
}

// WaitForFences implements device.Device
func (d *Device) WaitForFences(fences []device.Fence, all bool, timeout time.Duration) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("WaitForFences"); r != device.Success {
		return r
	}
	return d.waitLocked(timeout, func() bool {
		for _, f := range fences {
			if d.fences[f] != all {
				return !all
			}
		}
		return all
	})
}

// ResetFences implements device.Device
func (d *Device) ResetFences(fences []device.Fence) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			d.report("reset of unknown fence %d", f)
			continue
		}
		d.fences[f] = false
	}
	return device.Success
}

// FenceStatus implements device.Device
func (d *Device) FenceStatus(f device.Fence) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fences[f] {
		return device.Success
	}
	return device.NotReady
}

// CreateCommandPool implements device.Device
func (d *Device) CreateCommandPool(family uint32, flags device.CommandPoolCreateFlags) (device.CommandPool, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(family) >= len(d.families) {
		d.report("command pool for unknown family %d", family)
		return 0, device.ErrorInitializationFailed
	}
	h, r := d.create("CreateCommandPool", "command pool")
	return device.CommandPool(h), r
}

// DestroyCommandPool implements device.Device. Buffers still allocated
// from the pool are freed with it.
func (d *Device) DestroyCommandPool(p device.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, cb := range d.buffers {
		if cb.pool == p {
			if cb.state == cmdPending {
				d.report("command pool %d destroyed while buffer %d is pending", p, h)
			}
			delete(d.buffers, h)
		}
	}
	d.destroy(uint64(p), "command pool")
}

// AllocateCommandBuffers implements device.Device
func (d *Device) AllocateCommandBuffers(pool device.CommandPool, level device.CommandBufferLevel, count int) ([]device.CommandBuffer, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("AllocateCommandBuffers"); r != device.Success {
		return nil, r
	}
	if o, ok := d.objects[uint64(pool)]; !ok || o.kind != "command pool" {
		d.report("allocation from unknown command pool %d", pool)
		return nil, device.ErrorInitializationFailed
	}
	buffers := make([]device.CommandBuffer, count)
	for i := range buffers {
		h := device.CommandBuffer(d.handle())
		d.buffers[h] = &commandBuffer{pool: pool, level: level}
		buffers[i] = h
	}
	return buffers, device.Success
}

// FreeCommandBuffers implements device.Device
func (d *Device) FreeCommandBuffers(pool device.CommandPool, buffers []device.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range buffers {
		cb, ok := d.buffers[h]
		if !ok || cb.pool != pool {
			d.report("free of command buffer %d not allocated from pool %d", h, pool)
			continue
		}
		if cb.state == cmdPending {
			d.report("free of pending command buffer %d", h)
		}
		delete(d.buffers, h)
	}
}

// ResetCommandBuffer implements device.Device
func (d *Device) ResetCommandBuffer(buffer device.CommandBuffer, release bool) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("ResetCommandBuffer"); r != device.Success {
		return r
	}
	cb, ok := d.buffers[buffer]
	if !ok {
		d.report("reset of unknown command buffer %d", buffer)
		return device.ErrorInitializationFailed
	}
	if cb.state == cmdPending {
		d.report("reset of pending command buffer %d", buffer)
	}
	cb.state = cmdInitial
	cb.commands = nil
	cb.resets++
	return device.Success
}

// BeginCommandBuffer implements device.Device
func (d *Device) BeginCommandBuffer(buffer device.CommandBuffer, info device.BeginInfo) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("BeginCommandBuffer"); r != device.Success {
		return r
	}
	cb, ok := d.buffers[buffer]
	if !ok {
		d.report("begin of unknown command buffer %d", buffer)
		return device.ErrorInitializationFailed
	}
	switch cb.state {
	case cmdRecording:
		d.report("begin of command buffer %d that is already recording", buffer)
	case cmdPending:
		d.report("begin of pending command buffer %d", buffer)
	}
	if cb.level == device.CommandBufferLevelSecondary && info.Flags&device.CommandBufferUsageRenderPassContinue != 0 {
		if info.Inheritance == nil || info.Inheritance.RenderPass == 0 {
			d.report("secondary command buffer %d continues a render pass without inheritance", buffer)
		}
	}
	cb.state = cmdRecording
	cb.oneTime = info.Flags&device.CommandBufferUsageOneTimeSubmit != 0
	cb.commands = nil
	return device.Success
}

// EndCommandBuffer implements device.Device
func (d *Device) EndCommandBuffer(buffer device.CommandBuffer) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("EndCommandBuffer"); r != device.Success {
		return r
	}
	cb, ok := d.buffers[buffer]
	if !ok || cb.state != cmdRecording {
		d.report("end of command buffer %d that is not recording", buffer)
		return device.ErrorInitializationFailed
	}
	cb.state = cmdExecutable
	return device.Success
}

func (d *Device) record(buffer device.CommandBuffer, c Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.buffers[buffer]
	if !ok || cb.state != cmdRecording {
		d.report("%s recorded into command buffer %d that is not recording", c.Kind, buffer)
		return
	}
	cb.commands = append(cb.commands, c)
}

// CmdPipelineBarrier implements device.Device
func (d *Device) CmdPipelineBarrier(buffer device.CommandBuffer, src, dst device.PipelineStageFlags, buffers []device.BufferMemoryBarrier, images []device.ImageMemoryBarrier) {
	for _, b := range images {
		if b.NewLayout == device.ImageLayoutIgnored || b.OldLayout == device.ImageLayoutIgnored {
			d.mu.Lock()
			d.report("image barrier uses the ignored layout sentinel")
			d.mu.Unlock()
		}
	}
	d.record(buffer, Command{
		Kind:     "PipelineBarrier",
		SrcStage: src,
		DstStage: dst,
		Buffers:  append([]device.BufferMemoryBarrier(nil), buffers...),
		Images:   append([]device.ImageMemoryBarrier(nil), images...),
	})
}

// CmdCopyBuffer implements device.Device
func (d *Device) CmdCopyBuffer(buffer device.CommandBuffer, src, dst device.Buffer, regions []device.BufferCopy) {
	d.record(buffer, Command{Kind: "CopyBuffer", Src: uint64(src), Dst: uint64(dst)})
}

// CmdCopyBufferToImage implements device.Device
func (d *Device) CmdCopyBufferToImage(buffer device.CommandBuffer, src device.Buffer, dst device.Image, layout device.ImageLayout, regions []device.BufferImageCopy) {
	d.record(buffer, Command{
		Kind:   "CopyBufferToImage",
		Src:    uint64(src),
		Dst:    uint64(dst),
		Layout: layout,
		Copies: append([]device.BufferImageCopy(nil), regions...),
	})
}

// CmdBlitImage implements device.Device
func (d *Device) CmdBlitImage(buffer device.CommandBuffer, src device.Image, srcLayout device.ImageLayout, dst device.Image, dstLayout device.ImageLayout, regions []device.ImageBlit, filter device.Filter) {
	if srcLayout != device.ImageLayoutTransferSrcOptimal || dstLayout != device.ImageLayoutTransferDstOptimal {
		d.mu.Lock()
		d.report("blit from %s to %s", srcLayout, dstLayout)
		d.mu.Unlock()
	}
	d.record(buffer, Command{
		Kind:   "BlitImage",
		Src:    uint64(src),
		Dst:    uint64(dst),
		Layout: dstLayout,
		Blits:  append([]device.ImageBlit(nil), regions...),
	})
}

// CmdExecuteCommands implements device.Device
func (d *Device) CmdExecuteCommands(buffer device.CommandBuffer, secondaries []device.CommandBuffer) {
	d.mu.Lock()
	for _, h := range secondaries {
		cb, ok := d.buffers[h]
		if !ok || cb.level != device.CommandBufferLevelSecondary || cb.state != cmdExecutable {
			d.report("execute of command buffer %d that is not an executable secondary", h)
		}
	}
	d.mu.Unlock()
	d.record(buffer, Command{Kind: "ExecuteCommands", Secondaries: append([]device.CommandBuffer(nil), secondaries...)})
}

// CmdBeginRenderPass implements device.Device
func (d *Device) CmdBeginRenderPass(buffer device.CommandBuffer, begin device.RenderPassBegin) {
	d.record(buffer, Command{Kind: "BeginRenderPass", Begin: begin})
}

// CmdEndRenderPass implements device.Device
func (d *Device) CmdEndRenderPass(buffer device.CommandBuffer) {
	d.record(buffer, Command{Kind: "EndRenderPass"})
}

func align(size uint64) uint64 {
	return (size + alignment - 1) / alignment * alignment
}

// CreateBuffer implements device.Device
func (d *Device) CreateBuffer(info device.BufferCreateInfo) (device.Buffer, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, r := d.create("CreateBuffer", "buffer")
	if r == device.Success {
		d.objects[h].data = make([]byte, 0, info.Size)
	}
	return device.Buffer(h), r
}

// DestroyBuffer implements device.Device
func (d *Device) DestroyBuffer(b device.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(b), "buffer")
}

// BufferMemoryRequirements implements device.Device
func (d *Device) BufferMemoryRequirements(b device.Buffer) device.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	var size uint64
	if o, ok := d.objects[uint64(b)]; ok {
		size = uint64(cap(o.data))
	}
	return device.MemoryRequirements{Size: align(size), Alignment: alignment, MemoryTypeBits: 0x3}
}

func (d *Device) bind(op, kind string, h uint64, m device.Memory) device.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected(op); r != device.Success {
		return r
	}
	o, ok := d.objects[h]
	if !ok || o.kind != kind {
		d.report("bind of unknown %s %d", kind, h)
		return device.ErrorInitializationFailed
	}
	if mem, ok := d.objects[uint64(m)]; !ok || mem.kind != "memory" {
		d.report("bind of unknown memory %d", m)
		return device.ErrorInitializationFailed
	}
	if o.bound != 0 {
		d.report("%s %d is already bound", kind, h)
	}
	o.bound = m
	return device.Success
}

// BindBufferMemory implements device.Device
func (d *Device) BindBufferMemory(b device.Buffer, m device.Memory, offset uint64) device.Result {
	return d.bind("BindBufferMemory", "buffer", uint64(b), m)
}

// CreateImage implements device.Device
func (d *Device) CreateImage(info device.ImageCreateInfo) (device.Image, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Width == 0 || info.Extent.Height == 0 || info.MipLevels == 0 {
		d.report("image with extent %v and %d levels", info.Extent, info.MipLevels)
		return 0, device.ErrorInitializationFailed
	}
	h, r := d.create("CreateImage", "image")
	if r == device.Success {
		layers := info.Layers
		if layers == 0 {
			layers = 1
		}
		d.objects[h].data = make([]byte, 0, uint64(info.Extent.Width)*uint64(info.Extent.Height)*4*uint64(layers)*2)
		d.objects[h].levels = info.MipLevels
	}
	return device.Image(h), r
}

// DestroyImage implements device.Device
func (d *Device) DestroyImage(i device.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(i), "image")
}

// ImageMemoryRequirements implements device.Device
func (d *Device) ImageMemoryRequirements(i device.Image) device.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	var size uint64
	if o, ok := d.objects[uint64(i)]; ok {
		size = uint64(cap(o.data))
	}
	return device.MemoryRequirements{Size: align(size), Alignment: alignment, MemoryTypeBits: 0x1}
}

// BindImageMemory implements device.Device
func (d *Device) BindImageMemory(i device.Image, m device.Memory, offset uint64) device.Result {
	return d.bind("BindImageMemory", "image", uint64(i), m)
}

// CreateImageView implements device.Device
func (d *Device) CreateImageView(info device.ImageViewCreateInfo) (device.ImageView, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(info.Image)]; !ok || (o.kind != "image" && o.kind != "swapchain image") {
		d.report("view of unknown image %d", info.Image)
		return 0, device.ErrorInitializationFailed
	}
	h, r := d.create("CreateImageView", "image view")
	if r == device.Success {
		d.objects[h].parent = uint64(info.Image)
	}
	return device.ImageView(h), r
}

// DestroyImageView implements device.Device
func (d *Device) DestroyImageView(v device.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(v), "image view")
}

// AllocateMemory implements device.Device
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (device.Memory, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(typeIndex) >= len(d.memory.Types) {
		d.report("allocation from unknown memory type %d", typeIndex)
		return 0, device.ErrorOutOfDeviceMemory
	}
	h, r := d.create("AllocateMemory", "memory")
	if r == device.Success {
		d.objects[h].data = make([]byte, size)
		d.objects[h].levels = typeIndex
	}
	return device.Memory(h), r
}

// FreeMemory implements device.Device
func (d *Device) FreeMemory(m device.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, o := range d.objects {
		if o.bound == m && (o.kind == "buffer" || o.kind == "image") {
			d.report("memory %d freed while bound to %s %d", m, o.kind, h)
		}
	}
	d.destroy(uint64(m), "memory")
}

// MapMemory implements device.Device
func (d *Device) MapMemory(m device.Memory, offset, size uint64) ([]byte, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.injected("MapMemory"); r != device.Success {
		return nil, r
	}
	o, ok := d.objects[uint64(m)]
	if !ok || o.kind != "memory" {
		d.report("map of unknown memory %d", m)
		return nil, device.ErrorMemoryMapFailed
	}
	if d.memory.Types[o.levels].PropertyFlags&device.MemoryPropertyHostVisible == 0 {
		d.report("map of memory %d that is not host visible", m)
		return nil, device.ErrorMemoryMapFailed
	}
	if offset+size > uint64(len(o.data)) {
		d.report("map of %d bytes at %d past the end of memory %d", size, offset, m)
		return nil, device.ErrorMemoryMapFailed
	}
	return o.data[offset : offset+size], device.Success
}

// UnmapMemory implements device.Device
func (d *Device) UnmapMemory(m device.Memory) {}

// CreateRenderPass implements device.Device
func (d *Device) CreateRenderPass(info device.RenderPassCreateInfo) (device.RenderPass, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, r := d.create("CreateRenderPass", "render pass")
	return device.RenderPass(h), r
}

// DestroyRenderPass implements device.Device
func (d *Device) DestroyRenderPass(p device.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(p), "render pass")
}

// CreateFramebuffer implements device.Device
func (d *Device) CreateFramebuffer(info device.FramebufferCreateInfo) (device.Framebuffer, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(info.RenderPass)]; !ok || o.kind != "render pass" {
		d.report("framebuffer for unknown render pass %d", info.RenderPass)
		return 0, device.ErrorInitializationFailed
	}
	h, r := d.create("CreateFramebuffer", "framebuffer")
	return device.Framebuffer(h), r
}

// DestroyFramebuffer implements device.Device
func (d *Device) DestroyFramebuffer(f device.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(f), "framebuffer")
}

// CreateSwapchain implements device.Device
func (d *Device) CreateSwapchain(info device.SwapchainCreateInfo) (device.Swapchain, device.SwapchainProperties, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, r := d.create("CreateSwapchain", "swapchain")
	if r != device.Success {
		return 0, device.SwapchainProperties{}, r
	}
	count := info.MinImageCount
	if count < 2 {
		count = 2
	}
	o := d.objects[h]
	o.props = device.SwapchainProperties{Format: device.FormatB8G8R8A8Unorm, Extent: info.Extent}
	for i := uint32(0); i < count; i++ {
		img := d.handle()
		d.objects[img] = &object{kind: "swapchain image", parent: h, levels: 1}
		o.images = append(o.images, device.Image(img))
	}
	return device.Swapchain(h), o.props, device.Success
}

// DestroySwapchain implements device.Device
func (d *Device) DestroySwapchain(s device.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[uint64(s)]
	if !ok || o.kind != "swapchain" {
		d.report("destroy of unknown swapchain %d", s)
		return
	}
	for _, img := range o.images {
		delete(d.objects, uint64(img))
	}
	delete(d.objects, uint64(s))
}

// SwapchainImages implements device.Device
func (d *Device) SwapchainImages(s device.Swapchain) ([]device.Image, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[uint64(s)]
	if !ok || o.kind != "swapchain" {
		return nil, device.ErrorSurfaceLost
	}
	return append([]device.Image(nil), o.images...), device.Success
}

// AcquireNextImage implements device.Device. Images are handed out
// round robin.
func (d *Device) AcquireNextImage(s device.Swapchain, timeout time.Duration, sem device.Semaphore, fence device.Fence) (uint32, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[uint64(s)]
	if !ok || o.kind != "swapchain" {
		return 0, device.ErrorSurfaceLost
	}
	r := device.Success
	if len(d.acquireRes) > 0 {
		r = d.acquireRes[0]
		d.acquireRes = d.acquireRes[1:]
	}
	if r != device.Success && r != device.Suboptimal {
		return 0, r
	}
	index := o.next % uint32(len(o.images))
	o.next++
	if sem != 0 {
		if s, ok := d.semaphores[sem]; !ok || s.timeline {
			d.report("acquire signals semaphore %d that is not binary", sem)
		} else {
			if s.signaled {
				d.report("acquire signals semaphore %d that is already signaled", sem)
			}
			s.signaled = true
		}
	}
	if fence != 0 {
		d.fences[fence] = true
	}
	return index, r
}

// CreatePipelineCache implements device.Device. Initial data is only
// accepted when it starts with the device's pipeline cache UUID.
func (d *Device) CreatePipelineCache(initial []byte) (device.PipelineCache, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, r := d.create("CreatePipelineCache", "pipeline cache")
	if r != device.Success {
		return 0, r
	}
	uuid := d.info.PipelineCacheUUID[:]
	if len(initial) >= len(uuid) && string(initial[:len(uuid)]) == string(uuid) {
		d.objects[h].data = append([]byte(nil), initial...)
	} else {
		d.objects[h].data = append([]byte(nil), uuid...)
	}
	return device.PipelineCache(h), device.Success
}

// PipelineCacheData implements device.Device
func (d *Device) PipelineCacheData(c device.PipelineCache) ([]byte, device.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[uint64(c)]
	if !ok || o.kind != "pipeline cache" {
		return nil, device.ErrorInitializationFailed
	}
	return append([]byte(nil), o.data...), device.Success
}

// DestroyPipelineCache implements device.Device
func (d *Device) DestroyPipelineCache(c device.PipelineCache) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(uint64(c), "pipeline cache")
}

// Destroy implements device.Device
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		d.report("device destroyed twice")
	}
	d.destroyed = true
}

var _ device.Device = (*Device)(nil)
