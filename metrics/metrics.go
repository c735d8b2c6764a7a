// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes process-wide counters and meters for the DHT
// node, the way the teacher repo's metrics package wraps a single shared
// rcrowley/go-metrics registry for the whole process.
package metrics

import (
	"github.com/rcrowley/go-metrics"
)

var reg = metrics.NewRegistry()

var (
	// QueriesSent counts every outbound KRPC request, across all methods.
	QueriesSent = metrics.NewRegisteredMeter("dht/queries/sent", reg)
	// QueriesReceived counts every inbound KRPC request, answered or not.
	QueriesReceived = metrics.NewRegisteredMeter("dht/queries/received", reg)
	// RepliesReceived counts matched responses to our own requests.
	RepliesReceived = metrics.NewRegisteredMeter("dht/replies/received", reg)
	// Timeouts counts transactions that expired without a reply.
	Timeouts = metrics.NewRegisteredMeter("dht/transactions/timeout", reg)
	// ErrorsReceived counts KRPC error envelopes received in response to
	// our own requests.
	ErrorsReceived = metrics.NewRegisteredMeter("dht/errors/received", reg)

	// GetQueriesCompleted and the Put meters count finished iterative
	// lookups, split by outcome for puts.
	GetQueriesCompleted = metrics.NewRegisteredMeter("dht/query/get/completed", reg)
	PutQueriesOk        = metrics.NewRegisteredMeter("dht/query/put/ok", reg)
	PutQueriesErr       = metrics.NewRegisteredMeter("dht/query/put/err", reg)

	// RoutingTableSize samples the live node count in the routing table.
	RoutingTableSize = metrics.NewRegisteredGaugeFloat64("dht/routingtable/size", reg)

	// SizeEstimate samples the current DHT population estimate.
	SizeEstimate = metrics.NewRegisteredHistogram("dht/size/estimate", reg, metrics.NewUniformSample(1000))
)

// Registry returns the shared registry, for callers that want to export it
// (e.g. periodic logging, or an external metrics sink).
func Registry() metrics.Registry { return reg }
