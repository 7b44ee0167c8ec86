// Skyfeed - Bluesky Firehose Ingestion and Custom Keyword Feeds
// Copyright 2026 Skyfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyfeed-dev/skyfeed

package api

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/skyfeed-dev/skyfeed/internal/validation"
)

// maxBodySize caps request bodies; no Skyfeed request legitimately
// approaches it.
const maxBodySize = 1 << 20

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type keywordsRequest struct {
	Keywords []string `json:"keywords" validate:"required,max=50,dive,required,min=2,max=100"`
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation. On failure it writes the error response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY",
			fmt.Sprintf("failed to decode request body: %v", err), nil)
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Fields())
		return false
	}
	return true
}
