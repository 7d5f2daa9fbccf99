package dto

import "livechat-backend/internal/model"

type CreateSessionRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type ChatRequest struct {
	ChatID string `json:"chatId"`
}

type AIReplyRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type AddMessageRequest struct {
	ChatID       string `json:"chatId"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	EmployeeID   string `json:"employeeId,omitempty"`
	EmployeeName string `json:"employeeName,omitempty"`
}

// EmployeeActionRequest is the body of takeover and assign. With employee
// auth enabled the employee fields may be omitted and come from the token.
type EmployeeActionRequest struct {
	ChatID       string `json:"chatId"`
	EmployeeID   string `json:"employeeId,omitempty"`
	EmployeeName string `json:"employeeName,omitempty"`
}

type SessionResponse struct {
	Success bool          `json:"success"`
	Session model.Session `json:"session"`
}

type SessionsResponse struct {
	Sessions []model.Session `json:"sessions"`
	Count    int             `json:"count"`
}

type MessageResponse struct {
	Success bool          `json:"success"`
	Message model.Message `json:"message"`
}

type MessagesResponse struct {
	ChatID        string          `json:"chatId"`
	Messages      []model.Message `json:"messages"`
	SessionStatus string          `json:"sessionStatus"`
	ChatMode      string          `json:"chatMode"`
}

type AIReplyResponse struct {
	Success     bool          `json:"success"`
	ChatID      string        `json:"chatId"`
	ChatMode    string        `json:"chatMode"`
	UserMessage model.Message `json:"userMessage"`
	Reply       model.Message `json:"reply"`
}

type PollResponse struct {
	Messages       []model.Message `json:"messages"`
	SessionStatus  string          `json:"sessionStatus"`
	ChatMode       string          `json:"chatMode"`
	EmployeeName   string          `json:"employeeName,omitempty"`
	HasNewMessages bool            `json:"hasNewMessages"`
}

type TakeoverInfo struct {
	TakenOverAt string `json:"takenOverAt"`
	TakenOverBy string `json:"takenOverBy"`
	EmployeeID  string `json:"employeeId"`
}

type SessionStats struct {
	SessionAge        int64 `json:"sessionAge"`
	MessageCount      int   `json:"messageCount"`
	UserMessages      int   `json:"userMessages"`
	AssistantMessages int   `json:"assistantMessages"`
}

type TakeoverMetadataResponse struct {
	Takeover       TakeoverInfo `json:"takeover"`
	SessionStats   SessionStats `json:"sessionStats"`
	ProcessingTime int64        `json:"processingTime"`
}

type TakeoverResponse struct {
	Success  bool                     `json:"success"`
	Session  model.Session            `json:"session"`
	Metadata TakeoverMetadataResponse `json:"metadata"`
}
