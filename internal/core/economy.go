package core

// Reward values in XP units. Leave reward is computed from session
// duration and interaction count, see domain.Session.LeaveReward.
const (
	RewardJoin           = 10
	RewardInteraction    = 5
	RewardRoundsStart    = 15
	RewardCaseDiscussion = 20
	RewardCriticalAlert  = 25
	RewardProcedureStart = 30
	RewardProcedureStep  = 10
)
