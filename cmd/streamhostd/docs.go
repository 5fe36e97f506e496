package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           streamhostd API
// @version         1.0
// @description     Local HTTP API for game-streaming service supervision, credential reconciliation and virtual display control.
//
// @contact.name   streamhostd maintainers
// @contact.url    https://github.com/your-org/streamhostd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
