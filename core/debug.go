// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:build !release
// +build !release

package core

// debugChecks enables the invariant checks that cost work on every call.
// Build with -tags release to drop them.
const debugChecks = true
