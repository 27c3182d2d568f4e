/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package topo_test

import "github.com/gridforge/wlmcore/cmn/cos"

func cosBitSet(n int, bits ...int) *cos.BitSet {
	b := cos.NewBitSet(n)
	for _, i := range bits {
		b.Set(i)
	}
	return b
}
