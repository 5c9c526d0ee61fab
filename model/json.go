//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a model response body.
// It tolerates ``` fences and surrounding prose, and rejects bodies without
// a balanced object.
func ExtractJSON(body string) (map[string]any, error) {
	body = stripFences(body)
	start := strings.IndexByte(body, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(body[start:i+1]), &out); err != nil {
					return nil, fmt.Errorf("malformed JSON object: %w", err)
				}
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}

// stripFences removes markdown code fences around a JSON body.
func stripFences(body string) string {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
