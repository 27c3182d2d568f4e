/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import jsoniter "github.com/json-iterator/go"

// JSON is the shared fast-path codec (SPEC_FULL.md's DOMAIN STACK: teacher
// usage throughout api/apc and ext/dsort), reused here so BitSet's
// MarshalJSON/UnmarshalJSON and any other cos-level codec need don't each
// pick their own json-iterator config.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func jsonMarshal(v any) ([]byte, error)        { return JSON.Marshal(v) }
func jsonUnmarshal(data []byte, v any) error { return JSON.Unmarshal(data, v) }
