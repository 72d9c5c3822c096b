package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Referral Desk API",
        "description": "Role-gated referral tracking backend for the guidance office",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Staff authentication"},
        {"name": "Referrals", "description": "Referral lifecycle"},
        {"name": "Public", "description": "Anonymous student intake"},
        {"name": "Categories", "description": "Active category registry"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a staff user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current authenticated user",
                "responses": {
                    "200": {"description": "User info"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/referrals": {
            "get": {
                "tags": ["Referrals"],
                "summary": "List all referrals (Admin/Counselor)",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Referral list"},
                    "403": {"description": "Forbidden"}
                }
            },
            "post": {
                "tags": ["Referrals"],
                "summary": "Create a referral",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateReferralRequest"}}
                ],
                "responses": {
                    "201": {"description": "Referral created"},
                    "400": {"description": "Validation failed"}
                }
            }
        },
        "/referrals/my-referrals": {
            "get": {
                "tags": ["Referrals"],
                "summary": "List the caller's own referrals",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Referral list"}
                }
            }
        },
        "/referrals/recent": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Latest referrals, scoped by role",
                "responses": {
                    "200": {"description": "Referral list"}
                }
            }
        },
        "/referrals/stats": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Referral counts by level, status and severity",
                "responses": {
                    "200": {"description": "Aggregated counts"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/referrals/export": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Export the filtered referral list",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "CSV or PDF document"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/referrals/{id}": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Get a referral by id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Referral"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Referrals"],
                "summary": "Update a referral; editable fields depend on role",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateReferralRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated referral"},
                    "400": {"description": "Validation failed"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Referrals"],
                "summary": "Delete a referral (Admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Deleted"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/public-referrals": {
            "post": {
                "tags": ["Public"],
                "summary": "Submit a student concern without authentication",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitConcernRequest"}}
                ],
                "responses": {
                    "201": {"description": "Referral code only"},
                    "400": {"description": "Concern is required"}
                }
            }
        },
        "/categories": {
            "get": {
                "tags": ["Categories"],
                "summary": "List active referral categories",
                "responses": {
                    "200": {"description": "Category list"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateReferralRequest": {
            "type": "object",
            "required": ["studentName", "level", "grade", "referralDate", "reason"],
            "properties": {
                "studentName": {"type": "string"},
                "studentId": {"type": "string"},
                "level": {"type": "string", "enum": ["Elementary", "JHS", "SHS"]},
                "grade": {"type": "string"},
                "referralDate": {"type": "string", "format": "date-time"},
                "reason": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["Low", "Medium", "High"]},
                "category": {"type": "string"}
            }
        },
        "UpdateReferralRequest": {
            "type": "object",
            "properties": {
                "studentName": {"type": "string"},
                "studentId": {"type": "string"},
                "level": {"type": "string", "enum": ["Elementary", "JHS", "SHS"]},
                "grade": {"type": "string"},
                "referralDate": {"type": "string", "format": "date-time"},
                "reason": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["Low", "Medium", "High"]},
                "status": {"type": "string", "enum": ["Pending", "Under Review", "For Consultation", "Complete"]},
                "category": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "SubmitConcernRequest": {
            "type": "object",
            "required": ["concern"],
            "properties": {
                "studentName": {"type": "string"},
                "concern": {"type": "string"},
                "nameOption": {"type": "string", "enum": ["realName", "anonymous", "preferNot"]}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "error": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
