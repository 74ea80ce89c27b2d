package tools

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DentalTable returns the capability table for the dental practice
// assistant. The implementations are stand-ins for the practice
// management system integration.
func DentalTable() *Table {
	return NewTable(
		Tool{
			Function: Function{
				Name:        "get_patient_info",
				Description: "Get information about a patient",
				Parameters: Schema{
					Type: "object",
					Properties: map[string]Property{
						"patient_id": {Type: "string", Description: "The ID of the patient"},
					},
					Required: []string{"patient_id"},
				},
			},
			Run: getPatientInfo,
		},
		Tool{
			Function: Function{
				Name:        "get_available_slots",
				Description: "Get available appointment slots for a specific date",
				Parameters: Schema{
					Type: "object",
					Properties: map[string]Property{
						"date":         {Type: "string", Description: "The date in YYYY-MM-DD format"},
						"service_type": {Type: "string", Description: "The type of service (e.g., Cleaning, Filling)"},
					},
					Required: []string{"date", "service_type"},
				},
			},
			Run: getAvailableSlots,
		},
		Tool{
			Function: Function{
				Name:        "schedule_appointment",
				Description: "Schedule a new appointment",
				Parameters: Schema{
					Type: "object",
					Properties: map[string]Property{
						"patient_id":   {Type: "string", Description: "The ID of the patient"},
						"date":         {Type: "string", Description: "The date in YYYY-MM-DD format"},
						"time":         {Type: "string", Description: "The time in HH:MM format"},
						"service_type": {Type: "string", Description: "The type of service (e.g., Cleaning, Filling)"},
					},
					Required: []string{"patient_id", "date", "time", "service_type"},
				},
			},
			Run: scheduleAppointment,
		},
		Tool{
			Function: Function{
				Name:        "get_treatment_history",
				Description: "Get treatment history for a patient",
				Parameters: Schema{
					Type: "object",
					Properties: map[string]Property{
						"patient_id": {Type: "string", Description: "The ID of the patient"},
					},
					Required: []string{"patient_id"},
				},
			},
			Run: getTreatmentHistory,
		},
	)
}

func getPatientInfo(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"id":         args["patient_id"],
		"name":       "John Doe",
		"age":        35,
		"last_visit": "2024-12-15",
		"upcoming_appointments": []map[string]any{
			{"date": "2025-03-20", "time": "10:00", "type": "Cleaning"},
		},
		"insurance": "Delta Dental",
	}, nil
}

func getAvailableSlots(_ context.Context, args map[string]any) (any, error) {
	date, _ := args["date"].(string)
	switch date {
	case "2025-03-18":
		return []string{"09:00", "11:30", "14:00"}, nil
	case "2025-03-19":
		return []string{"10:00", "13:30", "16:00"}, nil
	default:
		return []string{"09:30", "11:00", "14:30", "16:30"}, nil
	}
}

func scheduleAppointment(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"appointment_id": uuid.NewString(),
		"patient_id":     args["patient_id"],
		"date":           args["date"],
		"time":           args["time"],
		"service_type":   args["service_type"],
		"status":         "scheduled",
		"booked_at":      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func getTreatmentHistory(_ context.Context, args map[string]any) (any, error) {
	return []map[string]any{
		{"date": "2024-12-15", "procedure": "Cleaning", "dentist": "Dr. Smith", "notes": "Normal cleaning, no issues found"},
		{"date": "2024-09-10", "procedure": "Filling", "dentist": "Dr. Johnson", "notes": "Filled cavity on lower right molar"},
	}, nil
}
