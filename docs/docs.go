// Package docs registers the OpenAPI document served by the Swagger UI.
// The document is maintained by hand: keep paths and tags in step with the
// @Router and @Tags annotations in internal/http/handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/chats": {
            "post": {"tags": ["Chats"], "summary": "Get or create the chat between a client and a business", "responses": {"200": {"description": "OK"}}}
        },
        "/chats/{id}": {
            "get": {"tags": ["Chats"], "summary": "Get a chat", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/chats/{id}/messages": {
            "get": {"tags": ["Chats"], "summary": "List messages, oldest first", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Chats"], "summary": "Send a message", "responses": {"201": {"description": "Created"}}}
        },
        "/chats/{id}/ws": {
            "get": {"tags": ["Chats"], "summary": "Live message socket", "responses": {"101": {"description": "Switching Protocols"}}}
        },
        "/orders": {
            "post": {"tags": ["Orders"], "summary": "Create a repair order and its invoice", "responses": {"201": {"description": "Created"}}}
        },
        "/orders/{id}": {
            "get": {"tags": ["Orders"], "summary": "Get an order", "responses": {"200": {"description": "OK"}}},
            "patch": {"tags": ["Orders"], "summary": "Update an order and recompute totals", "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}},
            "delete": {"tags": ["Orders"], "summary": "Delete an order", "responses": {"204": {"description": "No Content"}}}
        },
        "/orders/{id}/status": {
            "patch": {"tags": ["Orders"], "summary": "Change order status", "responses": {"200": {"description": "OK"}}}
        },
        "/invoices/{id}": {
            "get": {"tags": ["Invoices"], "summary": "Get an invoice", "responses": {"200": {"description": "OK"}}}
        },
        "/invoices/{id}/checkout": {
            "post": {"tags": ["Invoices"], "summary": "Start a checkout session", "responses": {"200": {"description": "OK"}}}
        },
        "/invoices/{id}/pay": {
            "post": {"tags": ["Invoices"], "summary": "Mark an invoice as paid", "responses": {"200": {"description": "OK"}}}
        },
        "/businesses": {
            "get": {"tags": ["Businesses"], "summary": "Search businesses", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Businesses"], "summary": "Create a business", "responses": {"201": {"description": "Created"}}}
        },
        "/businesses/{id}": {
            "get": {"tags": ["Businesses"], "summary": "Get a business", "responses": {"200": {"description": "OK"}}}
        },
        "/businesses/{id}/name": {
            "get": {"tags": ["Businesses"], "summary": "Resolve a business name", "responses": {"200": {"description": "OK"}}}
        },
        "/businesses/{id}/requests": {
            "get": {"tags": ["Requests"], "summary": "List service requests for a business", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Requests"], "summary": "Create a service request", "responses": {"201": {"description": "Created"}}}
        },
        "/requests/{id}/status": {
            "patch": {"tags": ["Requests"], "summary": "Change a service request status", "responses": {"200": {"description": "OK"}}}
        },
        "/users/{id}/name": {
            "get": {"tags": ["Users"], "summary": "Resolve a user name", "responses": {"200": {"description": "OK"}}}
        },
        "/users/{id}/info": {
            "get": {"tags": ["Users"], "summary": "Resolve user name and email", "responses": {"200": {"description": "OK"}}}
        },
        "/me/chats": {
            "get": {"tags": ["Me"], "summary": "Chats for the businesses the caller owns", "responses": {"200": {"description": "OK"}}}
        },
        "/me/chats/stream": {
            "get": {"tags": ["Me"], "summary": "Server-sent owner chat snapshots", "produces": ["text/event-stream"], "responses": {"200": {"description": "OK"}}}
        },
        "/me/inbox": {
            "get": {"tags": ["Me"], "summary": "Owner inbox with resolved names", "responses": {"200": {"description": "OK"}}}
        },
        "/me/client-chats": {
            "get": {"tags": ["Me"], "summary": "Chats where the caller is the client", "responses": {"200": {"description": "OK"}}}
        },
        "/me/orders": {
            "get": {"tags": ["Me"], "summary": "Orders of the caller", "responses": {"200": {"description": "OK"}}}
        },
        "/me/invoices": {
            "get": {"tags": ["Me"], "summary": "Invoices billed to the caller", "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}}
        },
        "/me/invoices/stream": {
            "get": {"tags": ["Me"], "summary": "Server-sent invoice snapshots", "produces": ["text/event-stream"], "responses": {"200": {"description": "OK"}}}
        },
        "/me/requests": {
            "get": {"tags": ["Me"], "summary": "Service requests across owned businesses", "responses": {"200": {"description": "OK"}}}
        },
        "/me/profile": {
            "put": {"tags": ["Me"], "summary": "Update the caller profile", "responses": {"204": {"description": "No Content"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Repair Marketplace API",
	Description:      "Chats, repair orders, invoices and service requests.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
