// Package docs holds the OpenAPI description of the internal API, served by
// gin-swagger at /swagger when SWAGGER_ENABLED is set.
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
        "/events": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Stores the event as queued and schedules it for routing to in-app, email and chat channels.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Publish a notification event",
                "operationId": "publishEvent",
                "parameters": [
                    {
                        "description": "Event",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.PublishEventRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.AcceptedResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Duplicate event id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/polls/{id}/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Queues a debounced sync of the poll's chat card. Repeated calls within the debounce window coalesce.",
                "produces": ["application/json"],
                "tags": ["Cards"],
                "summary": "Schedule a poll card sync",
                "operationId": "syncPollCard",
                "parameters": [
                    {"type": "string", "description": "Poll ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.AcceptedResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/polls/{id}/card": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Queues removal of the poll's chat card. The body may name the card location for polls already deleted.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Cards"],
                "summary": "Schedule a poll card delete",
                "operationId": "deletePollCard",
                "parameters": [
                    {"type": "string", "description": "Poll ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Card location",
                        "name": "body",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/handlers.DeleteCardRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.AcceptedResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cards/reconcile": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Schedules a sync for every poll whose last card update failed.",
                "produces": ["application/json"],
                "tags": ["Cards"],
                "summary": "Re-schedule pending cards",
                "operationId": "reconcileCards",
                "parameters": [
                    {"type": "integer", "default": 100, "description": "Maximum polls to schedule (1..1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ReconcileResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{id}/link-code": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Issues a one-time code that binds a chat channel to the group. Issuing again replaces the live code.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Groups"],
                "summary": "Issue a group link code",
                "operationId": "issueLinkCode",
                "parameters": [
                    {"type": "string", "description": "Group ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Requesting user",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.IssueLinkCodeRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.LinkCodeResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Group not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.AcceptedResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "p1"},
                "status": {"type": "string", "example": "queued"}
            }
        },
        "handlers.DeleteCardRequest": {
            "type": "object",
            "properties": {
                "channel_id": {"type": "string", "example": "1122334455667788990"},
                "message_id": {"type": "string", "example": "1234567890123456789"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "group not found"},
                "request_id": {"type": "string", "example": "4b1c8a9e-6e0f-4a44-9d7e-2f6b3c1d0a55"}
            }
        },
        "handlers.IssueLinkCodeRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string", "example": "u1"}
            }
        },
        "handlers.LinkCodeResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "K7QX2M9D"},
                "expires_at": {"type": "string"}
            }
        },
        "handlers.PublishEventRequest": {
            "type": "object",
            "required": ["event_type"],
            "properties": {
                "id": {"type": "string", "example": "9b2d0c1e-7f0a-4c51-a3e2-5d8f1c7b6a90"},
                "event_type": {"type": "string", "example": "POLL_FINALIZED"},
                "resource": {"type": "object"},
                "actor": {"type": "object"},
                "payload": {"type": "object", "additionalProperties": true},
                "recipients": {"type": "object"},
                "dedupe_key": {"type": "string", "example": "poll-p1-finalized"}
            }
        },
        "handlers.ReconcileResponse": {
            "type": "object",
            "properties": {
                "scheduled": {"type": "integer", "example": 3}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/internal",
	Schemes:          []string{},
	Title:            "pollcord internal API",
	Description:      "Endpoints the scheduling application calls to publish notification events, keep poll cards in sync and link groups to chat channels.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
