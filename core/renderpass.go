// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/vkframe/device"
)

// RenderPass is a native render pass.
type RenderPass struct {
	dev         *Device
	handle      device.RenderPass
	attachments int
}

// NewRenderPass creates a render pass of a single subpass writing every
// attachment of info.
func (d *Device) NewRenderPass(info device.RenderPassCreateInfo) (*RenderPass, error) {
	handle, r := d.native.CreateRenderPass(info)
	if err := device.Check("vk.CreateRenderPass", r); err != nil {
		return nil, err
	}
	return &RenderPass{dev: d, handle: handle, attachments: len(info.Attachments)}, nil
}

// NewPresentRenderPass creates a render pass that clears one colour
// attachment of format and leaves it ready to be presented.
func (d *Device) NewPresentRenderPass(format device.Format) (*RenderPass, error) {
	return d.NewRenderPass(device.RenderPassCreateInfo{
		Attachments: []device.AttachmentDescription{{
			Format:        format,
			Samples:       device.SampleCount1,
			LoadOp:        device.AttachmentLoadOpClear,
			StoreOp:       device.AttachmentStoreOpStore,
			InitialLayout: device.ImageLayoutUndefined,
			FinalLayout:   device.ImageLayoutPresentSrc,
		}},
	})
}

// Handle returns the native render pass.
func (p *RenderPass) Handle() device.RenderPass {
	return p.handle
}

// Destroy destroys the render pass.
func (p *RenderPass) Destroy() {
	if p == nil || p.handle == 0 {
		return
	}
	p.dev.native.DestroyRenderPass(p.handle)
	p.handle = 0
}

// Framebuffer binds views to the attachments of a render pass.
type Framebuffer struct {
	dev    *Device
	handle device.Framebuffer
	pass   *RenderPass
	extent device.Extent2D
}

// NewFramebuffer creates a framebuffer of pass. There must be one view
// per attachment.
func (d *Device) NewFramebuffer(pass *RenderPass, views []*ImageView, extent device.Extent2D) (*Framebuffer, error) {
	if len(views) != pass.attachments {
		return nil, d.invariant("core.NewFramebuffer", "%d views for %d attachments", len(views), pass.attachments)
	}
	attachments := make([]device.ImageView, len(views))
	for i, v := range views {
		attachments[i] = v.handle
	}
	handle, r := d.native.CreateFramebuffer(device.FramebufferCreateInfo{
		RenderPass:  pass.handle,
		Attachments: attachments,
		Extent:      extent,
	})
	if err := device.Check("vk.CreateFramebuffer", r); err != nil {
		return nil, err
	}
	return &Framebuffer{dev: d, handle: handle, pass: pass, extent: extent}, nil
}

// Handle returns the native framebuffer.
func (f *Framebuffer) Handle() device.Framebuffer {
	return f.handle
}

// RenderPass returns the render pass of the framebuffer.
func (f *Framebuffer) RenderPass() *RenderPass {
	return f.pass
}

// Extent returns the extent of the framebuffer.
func (f *Framebuffer) Extent() device.Extent2D {
	return f.extent
}

// Destroy destroys the framebuffer.
func (f *Framebuffer) Destroy() {
	if f == nil || f.handle == 0 {
		return
	}
	f.dev.native.DestroyFramebuffer(f.handle)
	f.handle = 0
}

// RenderTarget is a render pass with one framebuffer per swapchain
// image.
type RenderTarget struct {
	Pass         *RenderPass
	Framebuffers []*Framebuffer
	Extent       device.Extent2D
}

// NewSwapchainTarget creates a present render pass and a framebuffer for
// every image of sc.
func (d *Device) NewSwapchainTarget(sc *Swapchain) (*RenderTarget, error) {
	pass, err := d.NewPresentRenderPass(sc.Format())
	if err != nil {
		return nil, err
	}
	t := &RenderTarget{Pass: pass, Extent: sc.Extent()}
	for _, v := range sc.Views() {
		fb, err := d.NewFramebuffer(pass, []*ImageView{v}, sc.Extent())
		if err != nil {
			t.Destroy()
			return nil, err
		}
		t.Framebuffers = append(t.Framebuffers, fb)
	}
	return t, nil
}

// Framebuffer returns the framebuffer of swapchain image index.
func (t *RenderTarget) Framebuffer(index uint32) *Framebuffer {
	if int(index) >= len(t.Framebuffers) {
		return nil
	}
	return t.Framebuffers[index]
}

// Destroy destroys the framebuffers and the render pass.
func (t *RenderTarget) Destroy() {
	if t == nil {
		return
	}
	for _, fb := range t.Framebuffers {
		fb.Destroy()
	}
	t.Framebuffers = nil
	t.Pass.Destroy()
}
