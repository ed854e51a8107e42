// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import "fmt"

const (
	contentHTML = "text/html"
	contentJSON = "application/json"
)

const loginPage = `<html><head><title>Device Login</title></head><body>` +
	`<h1>IoT Device Login</h1>` +
	`<form method="POST" action="/login">` +
	`<label>Username <input type="text" name="username"></label><br>` +
	`<label>Password <input type="password" name="password"></label><br>` +
	`<input type="submit" value="Login">` +
	`</form></body></html>`

const statusBody = `{"status":"ok"}`

const (
	postReply        = "OK"
	unsupportedReply = "Unsupported method"
)

func adminPage(firmware string) string {
	return fmt.Sprintf("<html><body><h1>IoT Device Admin Panel</h1><p>Firmware %s</p></body></html>", firmware)
}
