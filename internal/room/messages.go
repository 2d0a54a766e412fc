package room

// Outbound message types written to occupants.
const (
	MsgRoomState          = "room_state"
	MsgPlayerDisconnected = "player_disconnected"
	MsgGameFinished       = "game_finished"
	MsgRematchRequested   = "rematch_requested"
	MsgRematchStarted     = "rematch_started"
	MsgRematchPartnerLeft = "rematch_partner_left"
	MsgRoomClosed         = "room_closed"
)

// Reasons attached to terminal notices.
const (
	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonCreatorLeft          = "creator_left_before_start"
	ReasonExpired              = "expired"
	ReasonRematch              = "rematch"
	ReasonShutdown             = "shutdown"
	ReasonNoShow               = "opponent_no_show"
)
