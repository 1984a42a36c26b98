// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/devblok/vkframe/device/vulkan"
	log "github.com/sirupsen/logrus"
)

var (
	debug  = flag.Bool("debug", false, "Enable the validation layers")
	indent = flag.Bool("indent", false, "Indent the output")
)

func main() {
	flag.Parse()

	instance, err := vulkan.NewInstance(nil, vulkan.InstanceConfiguration{
		ApplicationName: "vkinfo",
		DebugMode:       *debug,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Destroy()

	var bytes []byte
	if *indent {
		bytes, err = json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	} else {
		bytes, err = json.Marshal(instance.PhysicalDevicesInfo())
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", bytes)
}
