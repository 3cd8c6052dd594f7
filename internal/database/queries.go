package database

const eventColumns = `
	timestamp, event_type, source_channel_id, dest_channel_id,
	source_channel_name, dest_channel_name, message_id, media_type,
	file_size_bytes, original_size, translated_size, translation_time,
	retry_count, posting_success, api_error_code, exception_message,
	edit_timestamp, previous_size, new_size, source_message,
	translated_message, dest_message_id`

const (
	insertEventQuery = `
		INSERT INTO message_events (` + eventColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectEventsQuery = `
		SELECT ` + eventColumns + `
		FROM message_events
		ORDER BY id ASC`

	// Newest first by insertion id, so the latest edit wins.
	selectLatestDestinationQuery = `
		SELECT dest_message_id
		FROM message_events
		WHERE source_channel_id = ? AND message_id = ? AND dest_message_id != ''
		ORDER BY id DESC
		LIMIT 1`

	countEventsQuery = `SELECT COUNT(*) FROM message_events`
)
