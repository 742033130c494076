// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

/*
Package config loads ingestion-service configuration using Koanf v2, layered
in order of increasing precedence:

 1. Built-in defaults (structs.Provider)
 2. An optional YAML config file
 3. Environment variables

Load the config once at process startup with LoadWithKoanf, which runs
Validate on the result and returns its error: a config error is fatal and must never
allow a partially-initialized pipeline to start accepting traffic.
*/
package config
