package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Series", "description": "Recurring delivery series and their events"},
        {"name": "Capacity", "description": "Daily limits, weekday defaults and the live stream"},
        {"name": "Calendar", "description": "Day and month views"}
    ],
    "paths": {
        "/series": {
            "post": {
                "tags": ["Series"],
                "summary": "Create a delivery series",
                "description": "Expands the recurrence and books one delivery per date. Dates the client already has a delivery on are skipped and answered with 207.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSeriesRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "207": {"description": "Some dates skipped", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Every date already booked", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/series/{id}": {
            "get": {
                "tags": ["Series"],
                "summary": "Get a delivery series",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/events/{id}": {
            "put": {
                "tags": ["Series"],
                "summary": "Edit a delivery event",
                "description": "scope=this moves only the event. scope=following regenerates the event and every later one of its series.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "scope", "in": "query", "type": "string", "enum": ["this", "following"], "default": "this"},
                    {"name": "If-Match", "in": "header", "type": "string", "description": "Expected series version"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditSeriesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "207": {"description": "Some dates skipped", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Conflict or stale version", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "delete": {
                "tags": ["Series"],
                "summary": "Delete delivery events",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "scope", "in": "query", "type": "string", "enum": ["this", "following", "all"], "default": "this"},
                    {"name": "If-Match", "in": "header", "type": "string", "description": "Expected series version"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "409": {"description": "Stale version", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/calendar": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Calendar view",
                "parameters": [
                    {"name": "start", "in": "query", "type": "string", "description": "YYYY-MM-DD, defaults to today"},
                    {"name": "view", "in": "query", "type": "string", "enum": ["DAY", "MONTH"], "default": "DAY"},
                    {"name": "clientId", "in": "query", "type": "string"},
                    {"name": "driverId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity": {
            "get": {
                "tags": ["Capacity"],
                "summary": "Daily capacity for a date range",
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "post": {
                "tags": ["Capacity"],
                "summary": "Apply a capacity write",
                "description": "DATE_OVERRIDE changes the given dates only. WEEKDAY_DEFAULT changes a weekday default and is limited to administrators.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetCapacityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "428": {"description": "Confirmation required", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/weekly": {
            "get": {
                "tags": ["Capacity"],
                "summary": "Weekday default limits",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/weekly/{weekday}": {
            "put": {
                "tags": ["Capacity"],
                "summary": "Change one weekday default",
                "parameters": [
                    {"name": "weekday", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LimitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/weekly/rewrite": {
            "post": {
                "tags": ["Capacity"],
                "summary": "Rewrite weekday defaults from a set of dates",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RewriteWeekdayDefaultsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "428": {"description": "Confirmation required", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/overrides": {
            "post": {
                "tags": ["Capacity"],
                "summary": "Override the limit of several dates",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkOverrideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/overrides/{date}": {
            "put": {
                "tags": ["Capacity"],
                "summary": "Override the limit of one date",
                "parameters": [
                    {"name": "date", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LimitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/capacity/stream": {
            "get": {
                "tags": ["Capacity"],
                "summary": "Live capacity changes",
                "description": "Server-sent events. \"capacity\" carries a change, \"lagged\" tells the client to refetch.",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "access_token", "in": "query", "type": "string", "description": "Token for clients that cannot set headers"}
                ],
                "responses": {
                    "200": {"description": "Event stream"},
                    "503": {"description": "Stream unavailable"}
                }
            }
        }
    },
    "definitions": {
        "CreateSeriesRequest": {
            "type": "object",
            "required": ["clientId", "clientName", "startDate"],
            "properties": {
                "clientId": {"type": "string"},
                "clientName": {"type": "string"},
                "assignedDriverId": {"type": "string"},
                "assignedDriverName": {"type": "string"},
                "startDate": {"type": "string"},
                "recurrence": {"type": "string", "enum": ["None", "Weekly", "2x-Monthly", "Monthly", "Custom"]},
                "repeatsEndDate": {"type": "string"},
                "customDates": {"type": "array", "items": {"type": "string"}},
                "time": {"type": "string"},
                "cluster": {"type": "integer"}
            }
        },
        "EditSeriesRequest": {
            "type": "object",
            "required": ["deliveryDate"],
            "properties": {
                "deliveryDate": {"type": "string"},
                "recurrence": {"type": "string"},
                "repeatsEndDate": {"type": "string"},
                "customDates": {"type": "array", "items": {"type": "string"}},
                "time": {"type": "string"},
                "cluster": {"type": "integer"},
                "assignedDriverId": {"type": "string"},
                "assignedDriverName": {"type": "string"},
                "expectedVersion": {"type": "integer"}
            }
        },
        "LimitRequest": {
            "type": "object",
            "required": ["limit"],
            "properties": {
                "limit": {"type": "integer", "minimum": 0}
            }
        },
        "BulkOverrideRequest": {
            "type": "object",
            "required": ["dates", "limit"],
            "properties": {
                "dates": {"type": "array", "items": {"type": "string"}},
                "limit": {"type": "integer", "minimum": 0}
            }
        },
        "RewriteWeekdayDefaultsRequest": {
            "type": "object",
            "required": ["dates", "limit"],
            "properties": {
                "dates": {"type": "array", "items": {"type": "string"}},
                "limit": {"type": "integer", "minimum": 0},
                "confirm": {"type": "boolean"}
            }
        },
        "SetCapacityRequest": {
            "type": "object",
            "required": ["mode", "limit"],
            "properties": {
                "mode": {"type": "string", "enum": ["DATE_OVERRIDE", "WEEKDAY_DEFAULT"]},
                "date": {"type": "string"},
                "dates": {"type": "array", "items": {"type": "string"}},
                "weekday": {"type": "string"},
                "limit": {"type": "integer", "minimum": 0},
                "confirm": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}},
                "retryable": {"type": "boolean"}
            }
        },
        "response.Envelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Food For All Delivery API",
	Description:      "Recurring delivery scheduling with daily capacity limits.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
