//go:build !unix

/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package xport

import "net"

func applyListenerSockopts(*net.TCPListener) {}
func applyConnSockopts(*net.TCPConn)         {}
func isInterrupted(error) bool               { return false }
