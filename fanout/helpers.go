/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package fanout

import (
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/wire"
)

func transportErrorCode(err error) cmn.RC { return cmn.ToRC(err) }

func addrKey(a wire.Addr) string { return a.String() }
