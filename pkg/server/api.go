package server

// APIVersion tags every request and response body on the wire.
const APIVersion = "v1"

// ToolSchema is the OpenAI-style function schema clients supply at session
// creation.
type ToolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type createSessionRequest struct {
	APIVersion string       `json:"api_version,omitempty"`
	Provider   string       `json:"provider"`
	Name       string       `json:"name,omitempty"`
	Platform   string       `json:"platform"`
	Tools      []ToolSchema `json:"tools"`
	Planner    *bool        `json:"planner,omitempty"`
}

type createSessionResponse struct {
	APIVersion string `json:"api_version"`
	SessionID  string `json:"session_id"`
}

type healthResponse struct {
	APIVersion string `json:"api_version"`
	Status     string `json:"status"`
	Model      string `json:"model"`
}

type statsResponse struct {
	APIVersion string     `json:"api_version"`
	Total      usageStats `json:"total"`
	Cache      usageStats `json:"cache"`
}

type usageStats struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type planRequest struct {
	APIVersion        string `json:"api_version,omitempty"`
	Goal              string `json:"goal"`
	AccessibilityTree string `json:"accessibility_tree"`
	URL               string `json:"url,omitempty"`
	Title             string `json:"title,omitempty"`
	AreaID            int    `json:"area_id,omitempty"`
}

type planResponse struct {
	APIVersion  string   `json:"api_version"`
	Explanation string   `json:"explanation"`
	Steps       []string `json:"steps"`
}

type stepRequest struct {
	APIVersion        string `json:"api_version,omitempty"`
	Goal              string `json:"goal"`
	Step              string `json:"step"`
	AccessibilityTree string `json:"accessibility_tree"`
	AreaID            int    `json:"area_id,omitempty"`
}

type actionModel struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type stepResponse struct {
	APIVersion  string        `json:"api_version"`
	Explanation string        `json:"explanation"`
	Actions     []actionModel `json:"actions"`
}

type statementRequest struct {
	APIVersion        string `json:"api_version,omitempty"`
	Statement         string `json:"statement"`
	AccessibilityTree string `json:"accessibility_tree"`
	URL               string `json:"url,omitempty"`
	Title             string `json:"title,omitempty"`
	Screenshot        string `json:"screenshot,omitempty"`
	AreaID            int    `json:"area_id,omitempty"`
}

type statementResponse struct {
	APIVersion  string `json:"api_version"`
	Result      any    `json:"result"`
	Explanation string `json:"explanation"`
}

type areaRequest struct {
	APIVersion        string `json:"api_version,omitempty"`
	Description       string `json:"description"`
	AccessibilityTree string `json:"accessibility_tree"`
	AreaID            int    `json:"area_id,omitempty"`
}

type areaResponse struct {
	APIVersion  string `json:"api_version"`
	ID          int    `json:"id"`
	Explanation string `json:"explanation"`
}

type elementModel struct {
	ID          int    `json:"id"`
	Explanation string `json:"explanation"`
}

type elementsResponse struct {
	APIVersion string         `json:"api_version"`
	Elements   []elementModel `json:"elements"`
}

type treeState struct {
	Tree string `json:"tree"`
	URL  string `json:"url,omitempty"`
}

type changesRequest struct {
	APIVersion string    `json:"api_version,omitempty"`
	Before     treeState `json:"before"`
	After      treeState `json:"after"`
}

type changesResponse struct {
	APIVersion string `json:"api_version"`
	Result     string `json:"result"`
}

type exampleRequest struct {
	APIVersion string   `json:"api_version,omitempty"`
	Goal       string   `json:"goal"`
	Actions    []string `json:"actions"`
}

type ackResponse struct {
	APIVersion string `json:"api_version"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

type errorResponse struct {
	APIVersion string `json:"api_version"`
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
}
