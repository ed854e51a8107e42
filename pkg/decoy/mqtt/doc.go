// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mqtt implements the MQTT-like decoy.
//
// The decoy performs exactly one read. If the first byte is the CONNECT
// marker (0x10) it replies with a CONNACK accepting the connection with no
// session present (20 02 00 00), encoded with the eclipse/paho.mqtt.golang
// packets library. Any other input gets no reply. The raw buffer is always
// recorded, and the handler returns after the single cycle: there is no
// SUBSCRIBE/PUBLISH handling and no session persistence.
package mqtt
