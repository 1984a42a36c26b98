// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"time"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// SwapchainConfig configures a swapchain.
type SwapchainConfig struct {
	// MinImageCount is the least number of images wanted, the device
	// may create more.
	MinImageCount uint32
	Extent        device.Extent2D
}

// Swapchain is a set of presentable images with a view of each.
type Swapchain struct {
	noCopy noCopy

	dev    *Device
	id     ID
	cfg    SwapchainConfig
	handle device.Swapchain
	props  device.SwapchainProperties
	images []*Image
	views  []*ImageView
}

// NewSwapchain creates a swapchain.
func (d *Device) NewSwapchain(cfg SwapchainConfig) (*Swapchain, error) {
	s := &Swapchain{dev: d, id: d.NextID(), cfg: cfg}
	if err := s.create(0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(old device.Swapchain) error {
	handle, props, r := s.dev.native.CreateSwapchain(device.SwapchainCreateInfo{
		MinImageCount: s.cfg.MinImageCount,
		Extent:        s.cfg.Extent,
		Old:           old,
	})
	if err := device.Check("vk.CreateSwapchain", r); err != nil {
		return err
	}
	handles, r := s.dev.native.SwapchainImages(handle)
	if err := device.Check("vk.GetSwapchainImages", r); err != nil {
		s.dev.native.DestroySwapchain(handle)
		return err
	}
	images := make([]*Image, len(handles))
	views := make([]*ImageView, 0, len(handles))
	for i, h := range handles {
		images[i] = s.dev.wrapImage(h, props.Format, props.Extent, 1, 1, device.ImageAspectColor)
		view, err := images[i].NewView()
		if err != nil {
			for _, v := range views {
				v.Destroy()
			}
			s.dev.native.DestroySwapchain(handle)
			return err
		}
		views = append(views, view)
	}
	s.handle, s.props, s.images, s.views = handle, props, images, views
	s.dev.log.WithFields(logrus.Fields{
		"id":     s.id,
		"kind":   "swapchain",
		"images": len(images),
		"extent": fmt.Sprintf("%dx%d", props.Extent.Width, props.Extent.Height),
	}).Debug("created")
	return nil
}

func (s *Swapchain) release() {
	for _, v := range s.views {
		v.Destroy()
	}
	for _, img := range s.images {
		img.Destroy()
	}
	s.views, s.images = nil, nil
}

// Handle returns the native swapchain.
func (s *Swapchain) Handle() device.Swapchain {
	return s.handle
}

// Format returns the format of the images.
func (s *Swapchain) Format() device.Format {
	return s.props.Format
}

// Extent returns the extent of the images.
func (s *Swapchain) Extent() device.Extent2D {
	return s.props.Extent
}

// Len returns the number of images.
func (s *Swapchain) Len() int {
	return len(s.images)
}

// Images returns the images. They belong to the swapchain.
func (s *Swapchain) Images() []*Image {
	return s.images
}

// Views returns a view of each image, in image order.
func (s *Swapchain) Views() []*ImageView {
	return s.views
}

// AcquireNextImage acquires the next image to render to and signals sem
// once it can be written. An out of date swapchain is reported through
// PresentResult, and then sem is not signaled.
func (s *Swapchain) AcquireNextImage(sem *Semaphore, timeout time.Duration) (uint32, PresentResult, error) {
	var h device.Semaphore
	if sem != nil {
		h = sem.handle
	}
	index, r := s.dev.native.AcquireNextImage(s.handle, timeout, h, 0)
	if r == device.Timeout || r == device.NotReady {
		return 0, PresentSuccess, fmt.Errorf("vk.AcquireNextImage(): %w", ErrTimeout)
	}
	res, err := presentResult("vk.AcquireNextImage", r)
	return index, res, err
}

// Recreate replaces the swapchain with one of extent. Views and images
// returned earlier are destroyed, the device must not be using them.
func (s *Swapchain) Recreate(extent device.Extent2D) error {
	old := s.handle
	s.release()
	s.cfg.Extent = extent
	err := s.create(old)
	s.dev.native.DestroySwapchain(old)
	if err != nil {
		s.handle = 0
	}
	return err
}

// Destroy destroys the views and the swapchain.
func (s *Swapchain) Destroy() {
	if s == nil || s.handle == 0 {
		return
	}
	s.release()
	s.dev.native.DestroySwapchain(s.handle)
	s.handle = 0
}
