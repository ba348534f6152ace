package main

// General API documentation for swaggo. Generate with `swag init -g cmd/analysisd/docs.go`.
//
// @title           analysisd API
// @version         1.0
// @description     Streams model output for a text query and delivers exactly one final result per request.
//
// @contact.name   analysisd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
