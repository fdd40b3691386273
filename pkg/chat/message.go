package chat

// Message is a single turn of a conversation as the backend reads it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Flow selects the backend prompt pipeline for a conversation.
type Flow string

const (
	FlowGeneralInfo           Flow = "general_info"
	FlowNewPatient            Flow = "new_patient"
	FlowVerifyPatient         Flow = "verify_patient"
	FlowListAppointments      Flow = "list_appointments"
	FlowFindSlots             Flow = "find_slots"
	FlowFamilyBooking         Flow = "family_booking"
	FlowEmergency             Flow = "emergency"
	FlowRescheduleAppointment Flow = "reschedule_appointment"
)

// Flows lists the flows the backend has prompts for, in menu order.
func Flows() []Flow {
	return []Flow{
		FlowGeneralInfo,
		FlowNewPatient,
		FlowVerifyPatient,
		FlowListAppointments,
		FlowFindSlots,
		FlowFamilyBooking,
		FlowEmergency,
		FlowRescheduleAppointment,
	}
}

// Known reports whether the backend has a dedicated prompt for f.
// Unknown flows are still sent; the backend falls back to general_info.
func (f Flow) Known() bool {
	for _, k := range Flows() {
		if f == k {
			return true
		}
	}
	return false
}
