package delivery

const (
	PriorityMin     = 1
	PriorityLow     = 2
	PriorityDefault = 3
	PriorityHigh    = 4
	PriorityMax     = 5
)

type Channel string

const (
	ChannelNtfy     Channel = "ntfy"
	ChannelTelegram Channel = "telegram"
	ChannelWebPush  Channel = "webpush"
)

type Notification struct {
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Click    string   `json:"click,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}
