package validators

import "go.mongodb.org/mongo-driver/bson"

var slotSchema = bson.M{
	"bsonType": "object",
	"required": []string{"room_id", "start_time", "end_time"},
	"properties": bson.M{
		"room_id":    bson.M{"bsonType": "string"},
		"start_time": bson.M{"bsonType": "date"},
		"end_time":   bson.M{"bsonType": "date"},
	},
}

var ChangeProposalValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"reservation_id",
			"owner_id",
			"proposer_id",
			"old",
			"new",
			"status",
			"created_at",
			"expires_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":            bson.M{"bsonType": "string"},
			"reservation_id": bson.M{"bsonType": "string"},
			"owner_id":       bson.M{"bsonType": "string"},
			"proposer_id":    bson.M{"bsonType": "string"},
			"old":            slotSchema,
			"new":            slotSchema,

			"status": bson.M{
				"enum": []string{"pending", "approved", "rejected", "expired"},
			},

			"created_at": bson.M{"bsonType": "date"},
			"expires_at": bson.M{"bsonType": "date"},

			"responded_at": bson.M{
				"bsonType": []string{"date", "null"},
			},
		},
	},
}
